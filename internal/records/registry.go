// Package records is the entity layer the console screens are built on. It
// names the backend entities and wraps the API client with record typed CRUD.
package records

import (
	"errors"
	"fmt"
	"strings"
)

var ErrUnknownEntity = errors.New("unknown entity")

// Entity is a backend collection served under /api/{Name}.
type Entity struct {
	Name  string
	Title string
	// Paged entities send X-Total-Count and friends on list requests.
	Paged bool
}

var registry = []Entity{
	{Name: "Base", Title: "Bases"},
	{Name: "Command", Title: "Commands"},
	{Name: "Class", Title: "Classes"},
	{Name: "Unit", Title: "Units"},
	{Name: "Contract", Title: "Contracts", Paged: true},
	{Name: "Tenant", Title: "Tenants"},
	{Name: "RentalProperty", Title: "Rental properties", Paged: true},
	{Name: "RevenueRate", Title: "Revenue rates", Paged: true},
	{Name: "PropertyGroup", Title: "Property groups"},
	{Name: "User", Title: "Users"},
	{Name: "Role", Title: "Roles"},
}

// Entities returns every known entity in menu order.
func Entities() []Entity {
	return append([]Entity(nil), registry...)
}

// Lookup finds an entity by name, ignoring case and a trailing "s".
func Lookup(name string) (Entity, error) {
	name = strings.TrimSpace(name)
	for _, candidate := range []string{name, strings.TrimSuffix(name, "s")} {
		for _, e := range registry {
			if strings.EqualFold(e.Name, candidate) {
				return e, nil
			}
		}
	}
	return Entity{}, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
}
