package migrateengine

import (
	"context"
	"regexp"
	"strings"
)

const identifier = "(?:\"[^\"]+\"|`[^`]+`|\\[[^\\]]+\\]|[A-Za-z_][A-Za-z0-9_$]*)"

var createStatement = regexp.MustCompile(`(?is)\bcreate\s+(?:temp\s+|temporary\s+)?(table|view)\s+(?:if\s+not\s+exists\s+)?(` +
	identifier + `(?:\s*\.\s*` + identifier + `)?)`)

var identifierPart = regexp.MustCompile(identifier)

// object is a table or view created by a migration script.
type object struct {
	kind string
	name string
}

// createdObjects lists the tables and views the scripts create, in creation order.
func createdObjects(scripts []script) []object {
	var objects []object
	seen := make(map[object]bool)
	for _, s := range scripts {
		for _, match := range createStatement.FindAllStringSubmatch(s.sql, -1) {
			parts := identifierPart.FindAllString(match[2], -1)
			o := object{
				kind: strings.ToUpper(match[1]),
				name: unquote(parts[len(parts)-1]),
			}
			if !seen[o] {
				seen[o] = true
				objects = append(objects, o)
			}
		}
	}
	return objects
}

func unquote(name string) string {
	if len(name) < 2 {
		return name
	}
	switch name[0] {
	case '"', '`', '[':
		return name[1 : len(name)-1]
	}
	return name
}

func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// dropCreated removes the scripts' objects in reverse creation order, then the
// history table. Objects of other targets sharing the database are left alone.
func (r *Runner) dropCreated(ctx context.Context, scripts []script) error {
	db := r.opts.DataSource.DB
	objects := createdObjects(scripts)
	for i := len(objects) - 1; i >= 0; i-- {
		o := objects[i]
		r.logger.WithField("object", o.name).Debug("Dropping ", strings.ToLower(o.kind))
		if _, err := db.ExecContext(ctx, "DROP "+o.kind+" IF EXISTS "+quote(o.name)); err != nil {
			return err
		}
	}
	_, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+quote(r.table))
	return err
}
