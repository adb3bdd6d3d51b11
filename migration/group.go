package migration

import "context"

// Group is the hierarchical container of application definitions. The root
// group transitively holds every application currently deployed.
type Group struct {
	ID      string
	Version string
	Apps    []AppDefinition
	Groups  []Group
}

// TransitiveApps returns every application in g and all nested groups, in
// depth-first order.
func (g Group) TransitiveApps() []AppDefinition {
	apps := append([]AppDefinition(nil), g.Apps...)
	for _, sub := range g.Groups {
		apps = append(apps, sub.TransitiveApps()...)
	}
	return apps
}

// FindApp returns the definition of id anywhere in g's hierarchy, or nil.
func (g Group) FindApp(id string) *AppDefinition {
	for i := range g.Apps {
		if g.Apps[i].ID == id {
			app := g.Apps[i]
			return &app
		}
	}
	for i := range g.Groups {
		if app := g.Groups[i].FindApp(id); app != nil {
			return app
		}
	}
	return nil
}

// UpdateApp replaces the definition of app.ID wherever it appears in g's
// hierarchy and reports whether a replacement happened. The receiver is
// modified in place.
func (g *Group) UpdateApp(app AppDefinition) bool {
	updated := false
	for i := range g.Apps {
		if g.Apps[i].ID == app.ID {
			g.Apps[i] = app
			updated = true
		}
	}
	for i := range g.Groups {
		if g.Groups[i].UpdateApp(app) {
			updated = true
		}
	}
	return updated
}

// GroupRepository is the group store collaborator. The engine only ever
// touches the root group.
type GroupRepository interface {
	// LoadRoot returns the root group, or nil if none is stored yet.
	LoadRoot(ctx context.Context) (*Group, error)

	// StoreRoot persists g as the new root group.
	StoreRoot(ctx context.Context, g Group) error
}
