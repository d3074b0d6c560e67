package rbac

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultCategory groups modules declared without a category.
const DefaultCategory = "Other"

// ErrInvalidCatalog indicates a malformed module catalog.
var ErrInvalidCatalog = errors.New("rbac: invalid catalog")

// Module is an immutable catalog entry.
type Module struct {
	ID       string `json:"id" yaml:"id"`
	Label    string `json:"label" yaml:"label"`
	Path     string `json:"path" yaml:"path"`
	Category string `json:"category" yaml:"category"`
}

// Catalog is the read-only registry of application modules and the seed
// permission matrix.
type Catalog struct {
	modules    []Module
	byID       map[string]int
	byPath     map[string]int
	categories []string
	defaults   RolePermissions
}

// NewCatalog validates modules and builds a catalog. Module ids and paths must
// be unique. Defaults are copied; roles absent from defaults seed empty.
func NewCatalog(modules []Module, defaults RolePermissions) (*Catalog, error) {
	c := &Catalog{
		modules: make([]Module, 0, len(modules)),
		byID:    make(map[string]int, len(modules)),
		byPath:  make(map[string]int, len(modules)),
	}
	seen := make(map[string]struct{})
	for _, m := range modules {
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return nil, fmt.Errorf("%w: module id required", ErrInvalidCatalog)
		}
		if _, dup := c.byID[m.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate module %q", ErrInvalidCatalog, m.ID)
		}
		if _, dup := c.byPath[m.Path]; dup && m.Path != "" {
			return nil, fmt.Errorf("%w: duplicate path %q", ErrInvalidCatalog, m.Path)
		}
		if m.Category == "" {
			m.Category = DefaultCategory
		}
		if m.Label == "" {
			m.Label = m.ID
		}
		c.byID[m.ID] = len(c.modules)
		if m.Path != "" {
			c.byPath[m.Path] = len(c.modules)
		}
		c.modules = append(c.modules, m)
		if _, ok := seen[m.Category]; !ok {
			seen[m.Category] = struct{}{}
			c.categories = append(c.categories, m.Category)
		}
	}
	c.defaults = make(RolePermissions, len(Roles()))
	for _, role := range Roles() {
		c.defaults[role] = defaults[role].Clone()
	}
	return c, nil
}

// Modules returns the modules in declared order.
func (c *Catalog) Modules() []Module {
	out := make([]Module, len(c.modules))
	copy(out, c.modules)
	return out
}

// Module looks a module up by id.
func (c *Catalog) Module(id string) (Module, bool) {
	idx, ok := c.byID[id]
	if !ok {
		return Module{}, false
	}
	return c.modules[idx], true
}

// ModuleByPath looks a module up by its navigable path.
func (c *Catalog) ModuleByPath(path string) (Module, bool) {
	idx, ok := c.byPath[path]
	if !ok {
		return Module{}, false
	}
	return c.modules[idx], true
}

// Categories lists categories in first-declared order.
func (c *Catalog) Categories() []string {
	out := make([]string, len(c.categories))
	copy(out, c.categories)
	return out
}

// ModulesInCategory returns the modules of one category in declared order.
func (c *Catalog) ModulesInCategory(category string) []Module {
	var out []Module
	for _, m := range c.modules {
		if m.Category == category {
			out = append(out, m)
		}
	}
	return out
}

// Defaults returns a fresh copy of the seed matrix.
func (c *Catalog) Defaults() RolePermissions {
	return c.defaults.Clone()
}

// Built-in module ids.
const (
	ModuleDashboard  = "dashboard"
	ModuleSales      = "sales"
	ModulePurchase   = "purchase"
	ModuleVouchers   = "vouchers"
	ModuleInventory  = "inventory"
	ModuleProducts   = "products"
	ModuleWarehouses = "warehouses"
	ModuleCustomers  = "customers"
	ModuleSuppliers  = "suppliers"
	ModuleAccounts   = "accounts"
	ModuleLedgers    = "ledgers"
	ModuleReports    = "reports"
	ModuleCompany    = "company"
	ModuleUsers      = "users"
	ModuleRoles      = "roles"
	ModuleSettings   = "settings"
	ModuleHelp       = "help"
)

var builtinModules = []Module{
	{ID: ModuleDashboard, Label: "Dashboard", Path: "/", Category: "General"},
	{ID: ModuleSales, Label: "Sales", Path: "/sales", Category: "Transactions"},
	{ID: ModulePurchase, Label: "Purchase", Path: "/purchase", Category: "Transactions"},
	{ID: ModuleVouchers, Label: "Vouchers", Path: "/vouchers", Category: "Transactions"},
	{ID: ModuleInventory, Label: "Inventory", Path: "/inventory", Category: "Inventory"},
	{ID: ModuleProducts, Label: "Products", Path: "/products", Category: "Inventory"},
	{ID: ModuleWarehouses, Label: "Warehouses", Path: "/warehouses", Category: "Inventory"},
	{ID: ModuleCustomers, Label: "Customers", Path: "/customers", Category: "Master Data"},
	{ID: ModuleSuppliers, Label: "Suppliers", Path: "/suppliers", Category: "Master Data"},
	{ID: ModuleAccounts, Label: "Chart of Accounts", Path: "/accounts", Category: "Accounting"},
	{ID: ModuleLedgers, Label: "Ledgers", Path: "/ledgers", Category: "Accounting"},
	{ID: ModuleReports, Label: "Reports", Path: "/reports", Category: "Reports"},
	{ID: ModuleCompany, Label: "Company Setup", Path: "/company", Category: "Administration"},
	{ID: ModuleUsers, Label: "Users", Path: "/users", Category: "Administration"},
	{ID: ModuleRoles, Label: "Role Management", Path: "/roles", Category: "Administration"},
	{ID: ModuleSettings, Label: "Settings", Path: "/settings", Category: "Administration"},
	{ID: ModuleHelp, Label: "Help", Path: "/help"},
}

// Setup modules managers may maintain but not delete from.
var managerNoDelete = map[string]bool{
	ModuleCompany:  true,
	ModuleUsers:    true,
	ModuleAccounts: true,
}

// Pure administration modules with reduced manager grants.
var managerRestricted = map[string]ModulePermissions{
	ModuleSettings: Grant(OpView),
	ModuleRoles:    {},
}

var userViewCreate = map[string]bool{
	ModuleSales:     true,
	ModulePurchase:  true,
	ModuleVouchers:  true,
	ModuleInventory: true,
}

var userNone = map[string]bool{
	ModuleAccounts: true,
	ModuleLedgers:  true,
	ModuleCompany:  true,
	ModuleUsers:    true,
	ModuleRoles:    true,
	ModuleSettings: true,
}

func builtinDefaults(modules []Module) RolePermissions {
	admin := make(Grants, len(modules))
	manager := make(Grants, len(modules))
	user := make(Grants, len(modules))
	for _, m := range modules {
		admin[m.ID] = AllGranted()

		switch {
		case managerNoDelete[m.ID]:
			manager[m.ID] = Grant(OpView, OpCreate, OpUpdate)
		case hasKey(managerRestricted, m.ID):
			manager[m.ID] = managerRestricted[m.ID]
		default:
			manager[m.ID] = AllGranted()
		}

		switch {
		case userNone[m.ID]:
			user[m.ID] = ModulePermissions{}
		case userViewCreate[m.ID]:
			user[m.ID] = Grant(OpView, OpCreate)
		default:
			user[m.ID] = Grant(OpView)
		}
	}
	return RolePermissions{RoleAdmin: admin, RoleManager: manager, RoleUser: user}
}

func hasKey(m map[string]ModulePermissions, key string) bool {
	_, ok := m[key]
	return ok
}

// DefaultCatalog returns the built-in ERP catalog.
func DefaultCatalog() *Catalog {
	c, err := NewCatalog(builtinModules, builtinDefaults(builtinModules))
	if err != nil {
		panic(err)
	}
	return c
}

type catalogFile struct {
	Modules  []Module               `yaml:"modules"`
	Defaults map[string]yamlDefault `yaml:"defaults"`
}

// yamlDefault maps module id to the operations granted by default.
// The key "*" applies to every module not listed explicitly.
type yamlDefault map[string][]Operation

// LoadCatalogYAML reads a catalog override:
//
//	modules:
//	  - {id: sales, label: Sales, path: /sales, category: Transactions}
//	defaults:
//	  admin: {"*": [view, create, update, delete]}
//	  user:  {sales: [view, create]}
func LoadCatalogYAML(r io.Reader) (*Catalog, error) {
	var file catalogFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %v", ErrInvalidCatalog, err)
	}
	defaults := make(RolePermissions, len(file.Defaults))
	for rawRole, byModule := range file.Defaults {
		role, err := ParseRole(rawRole)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidCatalog, err)
		}
		grants := make(Grants, len(file.Modules))
		for _, m := range file.Modules {
			id := strings.TrimSpace(m.ID)
			ops, ok := byModule[id]
			if !ok {
				ops = byModule["*"]
			}
			for _, op := range ops {
				if !op.Valid() {
					return nil, fmt.Errorf("%w: role %s module %s: unknown operation %q", ErrInvalidCatalog, role, id, op)
				}
			}
			grants[id] = Grant(ops...).Repaired()
		}
		defaults[role] = grants
	}
	return NewCatalog(file.Modules, defaults)
}
