// internal/app/directory/reader.go
package directory

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/normalize"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

// DefaultPageSize is the paged-results size used when none is configured.
const DefaultPageSize = 500

// Config describes the directory connection and layout.
type Config struct {
	URI           string
	BindDN        string
	BindPassword  string
	PeopleDN      string
	StructuresDN  string
	PageSize      uint32
	DefaultMail   string
	DialTimeout   time.Duration
	TLSSkipVerify bool
}

type searcher interface {
	SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error)
}

// LDAPReader implements Reader over an LDAP connection.
type LDAPReader struct {
	conn   searcher
	closer func()
	cfg    Config
	log    *zap.Logger
}

// Dial connects and binds to the directory.
func Dial(cfg Config, logger *zap.Logger) (*LDAPReader, error) {
	opts := []ldap.DialOpt{ldap.DialWithDialer(&net.Dialer{Timeout: cfg.DialTimeout})}
	if cfg.TLSSkipVerify {
		opts = append(opts, ldap.DialWithTLSConfig(&tls.Config{InsecureSkipVerify: true}))
	}
	conn, err := ldap.DialURL(cfg.URI, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.URI, err)
	}
	if cfg.BindDN != "" {
		if err := conn.Bind(cfg.BindDN, cfg.BindPassword); err != nil {
			conn.Close()
			return nil, fmt.Errorf("bind as %s: %w", cfg.BindDN, err)
		}
	}
	// Bounds the requests a timed-out search leaves behind.
	conn.SetTimeout(timeouts.Query())
	logger.Info("connected to directory", zap.String("uri", cfg.URI), zap.String("bind_dn", cfg.BindDN))
	return newReader(conn, func() { conn.Close() }, cfg, logger), nil
}

func newReader(conn searcher, closer func(), cfg Config, logger *zap.Logger) *LDAPReader {
	if cfg.PageSize == 0 {
		cfg.PageSize = DefaultPageSize
	}
	if closer == nil {
		closer = func() {}
	}
	return &LDAPReader{conn: conn, closer: closer, cfg: cfg, log: logger}
}

// Close unbinds and closes the connection.
func (r *LDAPReader) Close() {
	r.closer()
}

// search runs one paged search bounded by the query timeout. The server is
// asked to stop at the same deadline.
func (r *LDAPReader) search(ctx context.Context, baseDN, filter string, attrs []string) ([]*ldap.Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(ctx, timeouts.Query())
	defer cancel()

	req := ldap.NewSearchRequest(
		baseDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases,
		0, 0, false,
		filter,
		attrs,
		nil,
	)
	if deadline, ok := ctx.Deadline(); ok {
		req.TimeLimit = max(int(time.Until(deadline).Seconds()), 1)
	}

	type result struct {
		res *ldap.SearchResult
		err error
	}
	done := make(chan result, 1)
	start := time.Now()
	go func() {
		res, err := r.conn.SearchWithPaging(req, r.cfg.PageSize)
		done <- result{res, err}
	}()

	var out result
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("search %s %s: %w", baseDN, filter, ctx.Err())
	case out = <-done:
	}
	if out.err != nil {
		return nil, fmt.Errorf("search %s %s: %w", baseDN, filter, out.err)
	}
	r.log.Debug("directory search",
		zap.String("base_dn", baseDN),
		zap.String("filter", filter),
		zap.Int("entries", len(out.res.Entries)),
		zap.Duration("elapsed", time.Since(start)))
	return out.res.Entries, nil
}

// Institutions implements Reader.
func (r *LDAPReader) Institutions(ctx context.Context, q InstitutionQuery) ([]models.Institution, error) {
	entries, err := r.search(ctx, r.cfg.StructuresDN, InstitutionFilter(q), institutionAttributes)
	if err != nil {
		return nil, err
	}
	out := make([]models.Institution, 0, len(entries))
	for _, e := range entries {
		inst, err := ToInstitution(e)
		if err != nil {
			r.log.Warn("skipping institution entry", zap.String("dn", e.DN), zap.Error(err))
			continue
		}
		out = append(out, inst)
	}
	return out, nil
}

// People implements Reader.
func (r *LDAPReader) People(ctx context.Context, q Query) (Batch, error) {
	entries, err := r.search(ctx, r.cfg.PeopleDN, PeopleFilter(q), personAttributes)
	if err != nil {
		return Batch{}, err
	}
	var b Batch
	for _, e := range entries {
		p, err := ToPerson(e, r.cfg.DefaultMail)
		if err != nil {
			b.Rejected = append(b.Rejected, Rejected{
				DN:  e.DN,
				UID: normalize.Username(e.GetAttributeValue(AttrUID)),
				Err: err,
			})
			continue
		}
		b.People = append(b.People, p)
	}
	return b, nil
}

// UIDs implements Reader.
func (r *LDAPReader) UIDs(ctx context.Context) (map[string]struct{}, error) {
	entries, err := r.search(ctx, r.cfg.PeopleDN, PeopleFilter(Query{}), []string{AttrUID})
	if err != nil {
		return nil, err
	}
	uids := make(map[string]struct{}, len(entries))
	for _, e := range entries {
		if uid := normalize.Username(e.GetAttributeValue(AttrUID)); uid != "" {
			uids[uid] = struct{}{}
		}
	}
	return uids, nil
}
