package directory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/app/system/timeouts"
	"github.com/GIP-RECIA/ESCOSynchroMoodle-sub000/internal/domain/models"
	"github.com/go-ldap/ldap/v3"
	"go.uber.org/zap"
)

type fakeSearcher struct {
	entries  []*ldap.Entry
	err      error
	requests []*ldap.SearchRequest
	pageSize uint32
	// block, when set, holds every search until it is closed.
	block chan struct{}
}

func (f *fakeSearcher) SearchWithPaging(req *ldap.SearchRequest, pagingSize uint32) (*ldap.SearchResult, error) {
	if f.block != nil {
		<-f.block
		return nil, errors.New("search abandoned")
	}
	f.requests = append(f.requests, req)
	f.pageSize = pagingSize
	if f.err != nil {
		return nil, f.err
	}
	return &ldap.SearchResult{Entries: f.entries}, nil
}

func testReader(s searcher) *LDAPReader {
	return newReader(s, nil, Config{
		PeopleDN:     "ou=people,dc=example,dc=org",
		StructuresDN: "ou=structures,dc=example,dc=org",
		DefaultMail:  sentinelMail,
	}, zap.NewNop())
}

func TestLDAPReader_People_CollectsRejected(t *testing.T) {
	bad := ldap.NewEntry("uid=BAD,ou=people,dc=example,dc=org", map[string][]string{
		AttrObjectClass: {ClassStudent},
		AttrUID:         {"BAD"},
	})
	fs := &fakeSearcher{entries: []*ldap.Entry{studentEntry("F1700IVH"), bad}}
	r := testReader(fs)

	b, err := r.People(context.Background(), Query{Kinds: []models.PersonKind{models.KindStudent}, Institution: "0290009C"})
	if err != nil {
		t.Fatalf("People failed: %v", err)
	}
	if len(b.People) != 1 {
		t.Fatalf("expected 1 student, got %d", len(b.People))
	}
	if _, ok := b.People[0].(*models.Student); !ok {
		t.Errorf("expected a student, got %T", b.People[0])
	}
	if len(b.Rejected) != 1 || b.Rejected[0].DN != bad.DN {
		t.Errorf("expected BAD to be rejected, got %+v", b.Rejected)
	}
	if uids := b.RejectedUIDs(); len(uids) != 1 || uids[0] != "bad" {
		t.Errorf("RejectedUIDs() = %v, want [bad]", uids)
	}

	req := fs.requests[0]
	if req.BaseDN != "ou=people,dc=example,dc=org" {
		t.Errorf("BaseDN = %q", req.BaseDN)
	}
	if req.Filter != "(&(objectClass=ENTEleve)(ESCOUAI=0290009C))" {
		t.Errorf("Filter = %q", req.Filter)
	}
	if fs.pageSize != DefaultPageSize {
		t.Errorf("page size = %d, want %d", fs.pageSize, DefaultPageSize)
	}
}

func TestLDAPReader_SearchError(t *testing.T) {
	r := testReader(&fakeSearcher{err: errors.New("connection reset")})
	if _, err := r.People(context.Background(), Query{}); err == nil {
		t.Error("expected error")
	}
	if _, err := r.Institutions(context.Background(), InstitutionQuery{}); err == nil {
		t.Error("expected error")
	}
}

func TestLDAPReader_CancelledContext(t *testing.T) {
	fs := &fakeSearcher{}
	r := testReader(fs)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := r.UIDs(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if len(fs.requests) != 0 {
		t.Error("no search should be issued on a cancelled context")
	}
}

func TestLDAPReader_QueryTimeout(t *testing.T) {
	timeouts.Configure(timeouts.Config{Query: 20 * time.Millisecond})
	defer timeouts.Reset()

	fs := &fakeSearcher{block: make(chan struct{})}
	defer close(fs.block)
	r := testReader(fs)

	start := time.Now()
	_, err := r.People(context.Background(), Query{})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("search returned after %v", elapsed)
	}
}

func TestLDAPReader_SearchAsksServerTimeLimit(t *testing.T) {
	timeouts.Configure(timeouts.Config{Query: 90 * time.Second})
	defer timeouts.Reset()

	fs := &fakeSearcher{}
	r := testReader(fs)
	if _, err := r.UIDs(context.Background()); err != nil {
		t.Fatalf("UIDs: %v", err)
	}
	if len(fs.requests) != 1 {
		t.Fatalf("requests = %d, want 1", len(fs.requests))
	}
	if got := fs.requests[0].TimeLimit; got < 85 || got > 90 {
		t.Errorf("TimeLimit = %d, want about 90", got)
	}
}

func TestLDAPReader_UIDs(t *testing.T) {
	fs := &fakeSearcher{entries: []*ldap.Entry{
		ldap.NewEntry("uid=A", map[string][]string{AttrUID: {"F1700IVH"}}),
		ldap.NewEntry("uid=B", map[string][]string{AttrUID: {" t1 "}}),
		ldap.NewEntry("uid=C", map[string][]string{}),
	}}
	uids, err := testReader(fs).UIDs(context.Background())
	if err != nil {
		t.Fatalf("UIDs failed: %v", err)
	}
	if len(uids) != 2 {
		t.Fatalf("expected 2 uids, got %d", len(uids))
	}
	for _, want := range []string{"f1700ivh", "t1"} {
		if _, ok := uids[want]; !ok {
			t.Errorf("missing uid %q", want)
		}
	}
}

func TestLDAPReader_Institutions(t *testing.T) {
	fs := &fakeSearcher{entries: []*ldap.Entry{
		ldap.NewEntry("ENTStructureUAI=0290009C", map[string][]string{
			AttrStructureCode: {"0290009C"},
			AttrStructureName: {"LYCEE JEAN MOULIN"},
		}),
		ldap.NewEntry("ou=broken", map[string][]string{}),
	}}
	got, err := testReader(fs).Institutions(context.Background(), InstitutionQuery{Codes: []string{"0290009C"}})
	if err != nil {
		t.Fatalf("Institutions failed: %v", err)
	}
	if len(got) != 1 || got[0].Code != "0290009C" {
		t.Errorf("unexpected institutions: %+v", got)
	}
	if fs.requests[0].BaseDN != "ou=structures,dc=example,dc=org" {
		t.Errorf("BaseDN = %q", fs.requests[0].BaseDN)
	}
}
