// Package cli implements the rbacctl operator commands over the permission
// store.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
)

// RBACOpsCLI offers operational helpers over the persisted role matrix.
type RBACOpsCLI struct {
	store *rbac.Store
	authz *rbac.Authorizer
}

// NewRBACOpsCLI constructs the helper.
func NewRBACOpsCLI(store *rbac.Store) (*RBACOpsCLI, error) {
	if store == nil {
		return nil, errors.New("rbac cli: store not configured")
	}
	return &RBACOpsCLI{store: store, authz: rbac.NewAuthorizer(store, store.Catalog())}, nil
}

// Options are shared by every command.
type Options struct {
	Role       string
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

func (o *Options) defaults() {
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	if o.Stderr == nil {
		o.Stderr = os.Stderr
	}
}

// ModuleRow is one line of the show output.
type ModuleRow struct {
	Module   string `json:"module"`
	Category string `json:"category"`
	rbac.ModulePermissions
}

// ShowSummary is the JSON form of the show command.
type ShowSummary struct {
	Role    rbac.Role   `json:"role"`
	Active  bool        `json:"active"`
	Modules []ModuleRow `json:"modules"`
}

// ShowCommand prints one role's grants for every catalog module.
func (c *RBACOpsCLI) ShowCommand(ctx context.Context, opts Options) int {
	opts.defaults()
	role, ok := c.role(opts)
	if !ok {
		return 2
	}
	grants := c.authz.ForRole(role).Grants()
	summary := ShowSummary{Role: role, Active: c.store.ActiveRole() == role}
	for _, m := range c.store.Catalog().Modules() {
		summary.Modules = append(summary.Modules, ModuleRow{Module: m.ID, Category: m.Category, ModulePermissions: grants[m.ID]})
	}
	if opts.JSONOutput {
		return writeJSON(opts, summary)
	}

	tw := tabwriter.NewWriter(opts.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "MODULE\tCATEGORY\tVIEW\tCREATE\tUPDATE\tDELETE\n")
	for _, row := range summary.Modules {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\n", row.Module, row.Category,
			mark(row.View), mark(row.Create), mark(row.Update), mark(row.Delete))
	}
	if err := tw.Flush(); err != nil {
		fmt.Fprintf(opts.Stderr, "write output: %v\n", err)
		return 1
	}
	return 0
}

// ResetCommand restores the catalog defaults for one role.
func (c *RBACOpsCLI) ResetCommand(ctx context.Context, opts Options) int {
	opts.defaults()
	role, ok := c.role(opts)
	if !ok {
		return 2
	}
	if err := c.store.ResetRole(ctx, role); err != nil {
		fmt.Fprintf(opts.Stderr, "reset %s: %v\n", role, err)
		return 1
	}
	if opts.JSONOutput {
		return writeJSON(opts, map[string]any{"role": role, "reset": true})
	}
	fmt.Fprintf(opts.Stdout, "role %s reset to defaults\n", role)
	return 0
}

// PathsCommand prints the navigable paths for one role.
func (c *RBACOpsCLI) PathsCommand(ctx context.Context, opts Options) int {
	opts.defaults()
	role, ok := c.role(opts)
	if !ok {
		return 2
	}
	paths := c.authz.ForRole(role).AllowedPaths()
	if opts.JSONOutput {
		return writeJSON(opts, map[string]any{"role": role, "paths": paths})
	}
	for _, p := range paths {
		fmt.Fprintln(opts.Stdout, p)
	}
	return 0
}

func (c *RBACOpsCLI) role(opts Options) (rbac.Role, bool) {
	if opts.Role == "" {
		return c.store.ActiveRole(), true
	}
	role, err := rbac.ParseRole(opts.Role)
	if err != nil {
		fmt.Fprintf(opts.Stderr, "%v\n", err)
		return "", false
	}
	return role, true
}

func writeJSON(opts Options, v any) int {
	enc := json.NewEncoder(opts.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(opts.Stderr, "encode json: %v\n", err)
		return 1
	}
	return 0
}

func mark(v bool) string {
	if v {
		return "x"
	}
	return "-"
}
