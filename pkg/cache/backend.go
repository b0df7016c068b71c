package cache

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"strings"

	"github.com/go-logr/logr"
	sqlite3 "github.com/mattn/go-sqlite3"

	"github.com/djcass44/aptfetch/pkg/arch"
	"github.com/djcass44/aptfetch/pkg/deb"
	"github.com/djcass44/aptfetch/pkg/version"
)

// schema holds the package index plus its relation graph. A dependency
// expression "A | B, C" means (A or B) and C: the and_relation table
// models the AND-groups of one package, the or_relation table the
// alternatives within one group.
const schema = `
CREATE TABLE IF NOT EXISTS package(
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	arch TEXT NOT NULL,
	repo TEXT NOT NULL,
	version TEXT NOT NULL,
	url TEXT,
	file TEXT,
	UNIQUE (name, arch, version) ON CONFLICT ABORT,
	UNIQUE (file)
);
CREATE TABLE IF NOT EXISTS and_relation(
	id INTEGER PRIMARY KEY,
	package INTEGER NOT NULL,
	FOREIGN KEY (package) REFERENCES package(id)
);
CREATE TABLE IF NOT EXISTS or_relation(
	and_relation INTEGER NOT NULL,
	name TEXT NOT NULL,
	arch TEXT NOT NULL,
	package_relation TEXT NOT NULL,
	version_relation TEXT,
	version TEXT,
	FOREIGN KEY (and_relation) REFERENCES and_relation(id)
);`

// txnMode states whether an insert runs inside the initialization
// scan (where a transaction is already active and savepoints must be
// used) or on its own.
type txnMode int

const (
	txnOwn txnMode = iota
	txnSavepoint
)

// backend wraps the sqlite package index.
type backend struct {
	db    *sql.DB
	codec codec
}

// newBackend opens (or creates) the index database. The codec is
// constructed once by the caller and governs how domain values map
// onto columns.
func newBackend(path string, c codec) (*backend, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, err
	}
	// all statement sequencing below assumes one underlying
	// connection; cross-process serialization is sqlite's job
	db.SetMaxOpenConns(1)
	return &backend{db: db, codec: c}, nil
}

func (b *backend) close() error {
	return b.db.Close()
}

// create sets up the schema and runs the reconciliation scan. Taking
// the immediate write lock fails when another process is initializing
// or has initialized the database already; that is not an error, later
// queries re-validate file existence anyway.
func (b *backend) create(ctx context.Context, scan func(context.Context)) error {
	log := logr.FromContextOrDiscard(ctx)

	if _, err := b.db.ExecContext(ctx, "BEGIN IMMEDIATE"); err != nil {
		log.V(1).Info("cache database is locked, assuming another process initializes it")
		return nil
	}
	var tables int
	if err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table'").Scan(&tables); err != nil {
		_, _ = b.db.ExecContext(ctx, "ROLLBACK")
		return err
	}
	if tables != 0 {
		_, _ = b.db.ExecContext(ctx, "ROLLBACK")
		return nil
	}

	if _, err := b.db.ExecContext(ctx, schema); err != nil {
		_, _ = b.db.ExecContext(ctx, "ROLLBACK")
		return err
	}

	if scan != nil {
		scan(ctx)
	}

	_, err := b.db.ExecContext(ctx, "COMMIT")
	return err
}

// add inserts a package and its full relation graph. It returns false
// when a uniqueness constraint fires: the package is already present,
// or a concurrent process inserted it first. Both are benign.
func (b *backend) add(ctx context.Context, p *deb.Package, mode txnMode) (bool, error) {
	begin, rollback, commit := b.txnCommands(mode)

	if _, err := b.db.ExecContext(ctx, begin); err != nil {
		return false, err
	}

	var packageID int64
	err := b.db.QueryRowContext(ctx,
		"INSERT INTO package (name, arch, repo, version, url, file) VALUES(?,?,?,?,?,?) RETURNING id",
		p.Name,
		b.codec.fromArch(p.Arch),
		p.Repo,
		p.Version.String(),
		nullable(p.FileURL),
		nullable(p.LocalFile),
	).Scan(&packageID)
	if err != nil {
		_, _ = b.db.ExecContext(ctx, rollback)
		if isConstraintViolation(err) {
			return false, nil
		}
		return false, err
	}

	for _, group := range p.Relations() {
		var andID int64
		err := b.db.QueryRowContext(ctx,
			"INSERT INTO and_relation (package) VALUES(?) RETURNING id", packageID,
		).Scan(&andID)
		if err != nil {
			_, _ = b.db.ExecContext(ctx, rollback)
			if isConstraintViolation(err) {
				return false, nil
			}
			return false, err
		}
		if err := b.addAlternatives(ctx, andID, group); err != nil {
			_, _ = b.db.ExecContext(ctx, rollback)
			if isConstraintViolation(err) {
				return false, nil
			}
			return false, err
		}
	}

	_, err = b.db.ExecContext(ctx, commit)
	return err == nil, err
}

// addAlternatives bulk-inserts the OR-alternatives of one AND-group.
func (b *backend) addAlternatives(ctx context.Context, andID int64, group []version.VersionDepends) error {
	if len(group) == 0 {
		return nil
	}
	values := make([]string, 0, len(group))
	args := make([]any, 0, len(group)*6)
	for _, vd := range group {
		values = append(values, "(?,?,?,?,?,?)")
		args = append(args,
			andID,
			vd.Name,
			b.codec.fromArch(vd.Arch),
			string(vd.PackageRelation),
			nullable(string(vd.VersionRelation)),
			nullable(vd.Version.String()),
		)
	}
	_, err := b.db.ExecContext(ctx,
		"INSERT INTO or_relation (and_relation, name, arch, package_relation, version_relation, version) VALUES "+strings.Join(values, ","),
		args...,
	)
	return err
}

func (b *backend) txnCommands(mode txnMode) (begin, rollback, commit string) {
	if mode == txnSavepoint {
		return "SAVEPOINT add_package",
			"ROLLBACK TO add_package",
			"RELEASE add_package"
	}
	return "BEGIN IMMEDIATE", "ROLLBACK", "COMMIT"
}

// row mirrors one package row together with its database id; the id is
// carried explicitly so a chosen package can be mapped back to its
// relation graph.
type row struct {
	id  int64
	pkg *deb.Package
}

// get returns the best matching package for name and architecture,
// hydrated with its full relation graph. A supplied version filters
// candidates (relation defaults to larger-or-equal); rows whose backing
// file vanished from disk are discarded.
func (b *backend) get(ctx context.Context, a arch.Arch, name string, v version.Version, rel version.Relation) (*deb.Package, error) {
	rows, err := b.db.QueryContext(ctx,
		"SELECT id, name, arch, repo, version, url, file FROM package WHERE name = ? AND arch = ?",
		name, b.codec.fromArch(a),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []row
	for rows.Next() {
		var r row
		var archRaw, ver string
		var url, file sql.NullString
		r.pkg = &deb.Package{}
		if err := rows.Scan(&r.id, &r.pkg.Name, &archRaw, &r.pkg.Repo, &ver, &url, &file); err != nil {
			return nil, err
		}
		r.pkg.Arch = b.codec.toArch(archRaw)
		r.pkg.Version = version.New(ver)
		r.pkg.FileURL = url.String
		r.pkg.LocalFile = file.String
		candidates = append(candidates, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var best *row
	for i := range candidates {
		c := &candidates[i]
		if !v.Empty() {
			effective := rel
			if effective == "" {
				effective = version.Larger
			}
			if !deb.Filter(c.pkg, v, effective) {
				continue
			}
		}
		// self-healing against manual deletion
		if c.pkg.LocalFile == "" {
			continue
		}
		if _, err := os.Stat(c.pkg.LocalFile); err != nil {
			continue
		}
		if best == nil || best.pkg.Compare(c.pkg) < 0 {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	if err := b.fillRelations(ctx, best.id, best.pkg); err != nil {
		return nil, err
	}
	return best.pkg, nil
}

// fillRelations rebuilds the relation lists of a package from the
// graph tables. Consecutive rows sharing an and_relation id form one
// AND-group's OR-list; a new group starts whenever the id changes.
func (b *backend) fillRelations(ctx context.Context, packageID int64, p *deb.Package) error {
	rows, err := b.db.QueryContext(ctx, `
		SELECT and_relation.id, or_relation.name, or_relation.arch,
		       or_relation.package_relation, or_relation.version_relation, or_relation.version
		FROM and_relation
		JOIN or_relation ON or_relation.and_relation = and_relation.id
		WHERE and_relation.package = ?
		ORDER BY and_relation.id, or_relation.rowid`,
		packageID,
	)
	if err != nil {
		return err
	}
	defer rows.Close()

	var prevID int64 = -1
	var group []version.VersionDepends
	for rows.Next() {
		var andID int64
		var vd version.VersionDepends
		var archRaw, pkgRel string
		var verRel, ver sql.NullString
		if err := rows.Scan(&andID, &vd.Name, &archRaw, &pkgRel, &verRel, &ver); err != nil {
			return err
		}
		vd.Arch = b.codec.toArch(archRaw)
		vd.PackageRelation = version.PackageRelation(pkgRel)
		vd.VersionRelation = version.Relation(verRel.String)
		vd.Version = version.New(ver.String)

		if andID != prevID {
			if len(group) > 0 {
				p.AddRelation(group)
			}
			group = nil
			prevID = andID
		}
		group = append(group, vd)
	}
	if len(group) > 0 {
		p.AddRelation(group)
	}
	return rows.Err()
}

func (b *backend) size(ctx context.Context) (int, error) {
	var count int
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM package").Scan(&count)
	return count, err
}

// isConstraintViolation reports whether an insert failed on a
// uniqueness constraint, i.e. the row exists already.
func isConstraintViolation(err error) bool {
	var serr sqlite3.Error
	if errors.As(err, &serr) {
		return serr.Code == sqlite3.ErrConstraint
	}
	return false
}

// nullable maps an empty string onto NULL.
func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// codec translates domain values into their column representation and
// back. It is constructed once and handed to the backend, instead of
// registering global adapters.
type codec struct{}

func newCodec() codec {
	return codec{}
}

func (codec) fromArch(a arch.Arch) string {
	return a.String()
}

func (codec) toArch(s string) arch.Arch {
	return arch.FromString(s)
}
