// Package migrate applies the embedded, versioned store schema.
//
// Scripts under migrations/common run on every driver. Scripts under
// migrations/<driver> run only on that driver and share the version
// sequence with the common set. Each driver directory also carries the
// bootstrap.sql that creates its schema_migrations table.
package migrate

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strconv"
	"strings"
)

//go:embed migrations
var migrations embed.FS

const (
	commonDir     = "migrations/common"
	bootstrapFile = "bootstrap.sql"
)

// Migration is one versioned schema script.
type Migration struct {
	Version int
	Name    string
	sql     string
}

// Runner applies the migration set for one driver.
type Runner struct {
	db        *sql.DB
	driver    string
	bootstrap string
	set       []Migration
}

// NewRunner loads the migration set for driver. It fails for a driver with
// no embedded migrations directory.
func NewRunner(db *sql.DB, driver string) (*Runner, error) {
	driverDir := path.Join("migrations", driver)
	boot, err := migrations.ReadFile(path.Join(driverDir, bootstrapFile))
	if err != nil {
		return nil, fmt.Errorf("no migrations for driver %q: %w", driver, err)
	}
	set, err := loadMigrations(commonDir, driverDir)
	if err != nil {
		return nil, err
	}
	return &Runner{db: db, driver: driver, bootstrap: string(boot), set: set}, nil
}

// Migrations returns the driver's migration set in version order.
func (r *Runner) Migrations() []Migration {
	return append([]Migration(nil), r.set...)
}

func loadMigrations(dirs ...string) ([]Migration, error) {
	seen := make(map[int]string)
	var set []Migration
	for _, dir := range dirs {
		entries, err := fs.ReadDir(migrations, dir)
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", dir, err)
		}
		for _, e := range entries {
			name := e.Name()
			if e.IsDir() || name == bootstrapFile || !strings.HasSuffix(name, ".sql") {
				continue
			}
			prefix, _, ok := strings.Cut(name, "_")
			if !ok {
				return nil, fmt.Errorf("migration %s: missing version prefix", name)
			}
			ver, err := strconv.Atoi(prefix)
			if err != nil {
				return nil, fmt.Errorf("migration %s: %w", name, err)
			}
			if prev, dup := seen[ver]; dup {
				return nil, fmt.Errorf("migration %s: version %d already used by %s", name, ver, prev)
			}
			seen[ver] = name

			data, err := migrations.ReadFile(path.Join(dir, name))
			if err != nil {
				return nil, fmt.Errorf("reading %s: %w", name, err)
			}
			set = append(set, Migration{Version: ver, Name: name, sql: string(data)})
		}
	}

	sort.Slice(set, func(i, j int) bool { return set[i].Version < set[j].Version })
	return set, nil
}

func (r *Runner) ensureTable() error {
	if _, err := r.db.Exec(r.bootstrap); err != nil {
		return fmt.Errorf("bootstrap %s schema_migrations: %w", r.driver, err)
	}
	return nil
}

func (r *Runner) appliedVersion() (int, error) {
	var v sql.NullInt64
	if err := r.db.QueryRow("SELECT MAX(version) FROM schema_migrations").Scan(&v); err != nil {
		return 0, fmt.Errorf("reading applied version: %w", err)
	}
	return int(v.Int64), nil
}

// Run applies pending migrations in order and returns the names it applied.
// Each migration runs in its own transaction together with its
// schema_migrations row.
func (r *Runner) Run() ([]string, error) {
	if err := r.ensureTable(); err != nil {
		return nil, err
	}
	current, err := r.appliedVersion()
	if err != nil {
		return nil, err
	}

	var applied []string
	for _, m := range r.set {
		if m.Version <= current {
			continue
		}
		if err := r.apply(m); err != nil {
			return applied, err
		}
		applied = append(applied, m.Name)
	}
	return applied, nil
}

func (r *Runner) apply(m Migration) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin %s: %w", m.Name, err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(m.sql); err != nil {
		return fmt.Errorf("executing %s: %w", m.Name, err)
	}
	if _, err := tx.Exec("INSERT INTO schema_migrations (version, name) VALUES (?, ?)", m.Version, m.Name); err != nil {
		return fmt.Errorf("recording %s: %w", m.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit %s: %w", m.Name, err)
	}
	return nil
}

// Applied returns the names recorded in schema_migrations in version order.
func (r *Runner) Applied() ([]string, error) {
	if err := r.ensureTable(); err != nil {
		return nil, err
	}
	rows, err := r.db.Query("SELECT name FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Status returns the applied version and the number of pending migrations.
func (r *Runner) Status() (current, pending int, err error) {
	if err = r.ensureTable(); err != nil {
		return 0, 0, err
	}
	if current, err = r.appliedVersion(); err != nil {
		return 0, 0, err
	}
	for _, m := range r.set {
		if m.Version > current {
			pending++
		}
	}
	return current, pending, nil
}
