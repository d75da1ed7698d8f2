package app

import (
	"context"
	"io"
	"time"

	"github.com/reginaldbaraza-code/TofuOS/internal/ai"
	"github.com/reginaldbaraza-code/TofuOS/internal/auth"
	"github.com/reginaldbaraza-code/TofuOS/internal/authpw"
	"github.com/reginaldbaraza-code/TofuOS/internal/blob"
	"github.com/reginaldbaraza-code/TofuOS/internal/export"
	"github.com/reginaldbaraza-code/TofuOS/internal/jira"
	"github.com/reginaldbaraza-code/TofuOS/internal/search"
	"github.com/reginaldbaraza-code/TofuOS/internal/store"
	"github.com/reginaldbaraza-code/TofuOS/internal/studio"
)

type Session struct {
	Token  string
	UserID string
}

type dataStore interface {
	Ping(ctx context.Context) error
	EnsureUser(context.Context, store.User) error
	GetUserByID(context.Context, string) (store.User, error)
	ListSources(context.Context, string) ([]store.Source, int64, error)
	ReplaceSources(context.Context, string, []store.Source, *int64) (int64, error)
	AppendSources(context.Context, string, []store.Source) (int64, error)
	DeleteSource(context.Context, string, string) (store.Source, int64, error)
	SaveSourceContent(context.Context, string, string, string) error
	GetSourceContent(context.Context, string, string) (string, error)
	GetJiraConfig(context.Context, string) (store.JiraConfig, error)
	UpsertJiraConfig(context.Context, store.JiraConfig) error
	UpdateJiraLastProjectKey(context.Context, string, string) error
}

type sessionManager interface {
	Issue(context.Context, string) (string, time.Time, error)
	Resolve(context.Context, string) (string, error)
	Revoke(context.Context, string) error
}

type passwordAuth interface {
	SignUp(context.Context, authpw.SignUpRequest) (store.User, error)
	SignIn(context.Context, authpw.SignInRequest) (store.User, error)
}

type issueCreator interface {
	CreateIssue(context.Context, jira.Credentials, jira.IssueInput) (jira.Issue, error)
}

type sourceIndex interface {
	Search(context.Context, search.Query) search.Response
	IndexSource(search.SourceRecord)
	DeleteSource(string, string)
}

type studioArchive interface {
	Save(userID, docType, content, author string) (studio.Version, error)
	History(userID, docType string, limit int) ([]studio.Version, error)
	Content(userID, docType, hash string) (string, studio.Version, error)
}

type documentExporter interface {
	Export(context.Context, export.Request) (*export.Result, error)
}

type tokenSealer interface {
	Seal(string) ([]byte, error)
	Open([]byte) (string, error)
}

// Dependencies wires the collaborators of a Service. AI may hold a nil
// completer; every other field is required.
type Dependencies struct {
	Store     dataStore
	Sessions  sessionManager
	Passwords passwordAuth
	Blobs     blob.Store
	AI        *ai.Orchestrator
	Jira      issueCreator
	Search    sourceIndex
	Studio    studioArchive
	Export    documentExporter
	Sealer    tokenSealer
	DemoLogin bool
}

type Service struct {
	store     dataStore
	sessions  sessionManager
	passwords passwordAuth
	blobs     blob.Store
	ai        *ai.Orchestrator
	jira      issueCreator
	search    sourceIndex
	studio    studioArchive
	exporter  documentExporter
	sealer    tokenSealer
	demoLogin bool
}

var _ tokenSealer = (*auth.Sealer)(nil)

func New(deps Dependencies) *Service {
	return &Service{
		store:     deps.Store,
		sessions:  deps.Sessions,
		passwords: deps.Passwords,
		blobs:     deps.Blobs,
		ai:        deps.AI,
		jira:      deps.Jira,
		search:    deps.Search,
		studio:    deps.Studio,
		exporter:  deps.Export,
		sealer:    deps.Sealer,
		demoLogin: deps.DemoLogin,
	}
}

// Bootstrap makes sure the demo account exists so sessions and sources can
// reference it.
func (s *Service) Bootstrap(ctx context.Context) error {
	if !s.demoLogin {
		return nil
	}
	return s.store.EnsureUser(ctx, authpw.DemoUser)
}

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) SignIn(ctx context.Context, email, password string) (store.User, string, time.Time, error) {
	user, err := s.passwords.SignIn(ctx, authpw.SignInRequest{Email: email, Password: password})
	if err != nil {
		return store.User{}, "", time.Time{}, err
	}
	token, expiresAt, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return store.User{}, "", time.Time{}, err
	}
	return user, token, expiresAt, nil
}

func (s *Service) SignUp(ctx context.Context, req authpw.SignUpRequest) (store.User, string, time.Time, error) {
	user, err := s.passwords.SignUp(ctx, req)
	if err != nil {
		return store.User{}, "", time.Time{}, err
	}
	token, expiresAt, err := s.sessions.Issue(ctx, user.ID)
	if err != nil {
		return store.User{}, "", time.Time{}, err
	}
	return user, token, expiresAt, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	userID, err := s.sessions.Resolve(ctx, token)
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, UserID: userID}, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.sessions.Revoke(ctx, token)
}

func (s *Service) CurrentUser(ctx context.Context, session Session) (store.User, error) {
	return s.store.GetUserByID(ctx, session.UserID)
}

func (s *Service) OpenUpload(ctx context.Context, userID, fileID string) (io.ReadCloser, error) {
	key, err := blob.Key(userID, fileID)
	if err != nil {
		return nil, err
	}
	return s.blobs.Get(ctx, key)
}

// authorName is what studio commits are signed with.
func (s *Service) authorName(ctx context.Context, userID string) string {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil || user.DisplayName == "" {
		return userID
	}
	return user.DisplayName
}
