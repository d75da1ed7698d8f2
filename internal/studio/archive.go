// Package studio keeps every generated studio document in a per-user git
// repository so earlier versions can be listed and restored.
package studio

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"time"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

var (
	ErrInvalidName     = errors.New("invalid archive name")
	ErrVersionNotFound = errors.New("version not found")
)

var namePattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9_-]*$`)

type Version struct {
	Hash         string    `json:"hash"`
	DocumentType string    `json:"documentType"`
	Message      string    `json:"message"`
	Author       string    `json:"author"`
	CreatedAt    time.Time `json:"createdAt"`
}

type Archive struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Archive {
	return &Archive{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Save commits content as the newest version of docType. Saving content
// identical to the latest version returns that version unchanged.
func (a *Archive) Save(userID, docType, content, author string) (Version, error) {
	if err := validate(userID, docType); err != nil {
		return Version{}, err
	}
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := a.openOrInit(userID)
	if err != nil {
		return Version{}, err
	}
	worktree, err := repo.Worktree()
	if err != nil {
		return Version{}, fmt.Errorf("open worktree: %w", err)
	}

	fileName := docType + ".md"
	if err := os.WriteFile(filepath.Join(worktree.Filesystem.Root(), fileName), []byte(content), 0o644); err != nil {
		return Version{}, fmt.Errorf("write %s: %w", fileName, err)
	}
	if _, err := worktree.Add(fileName); err != nil {
		return Version{}, fmt.Errorf("git add %s: %w", fileName, err)
	}

	hash, err := worktree.Commit("Generate "+docType, &git.CommitOptions{
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@users.tofuos.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if errors.Is(err, git.ErrEmptyCommit) {
		head, headErr := repo.Head()
		if headErr != nil {
			return Version{}, fmt.Errorf("read head: %w", headErr)
		}
		hash = head.Hash()
	} else if err != nil {
		return Version{}, fmt.Errorf("commit %s: %w", fileName, err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return Version{}, fmt.Errorf("read commit object: %w", err)
	}
	return toVersion(commitObj, docType), nil
}

// History lists versions of docType, newest first. A user without an
// archive has no history.
func (a *Archive) History(userID, docType string, limit int) ([]Version, error) {
	if err := validate(userID, docType); err != nil {
		return nil, err
	}
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	items := make([]Version, 0)
	repo, err := git.PlainOpen(a.repoPath(userID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return items, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read head: %w", err)
	}

	fileName := docType + ".md"
	iter, err := repo.Log(&git.LogOptions{From: head.Hash(), FileName: &fileName})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toVersion(commitObj, docType))
		count++
		if limit > 0 && count >= limit {
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	return items, nil
}

// Content returns docType as it was at the given commit.
func (a *Archive) Content(userID, docType, hash string) (string, Version, error) {
	if err := validate(userID, docType); err != nil {
		return "", Version{}, err
	}
	lock := a.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(a.repoPath(userID))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return "", Version{}, ErrVersionNotFound
	}
	if err != nil {
		return "", Version{}, fmt.Errorf("open repo: %w", err)
	}

	resolved, err := resolveHash(repo, hash)
	if err != nil {
		return "", Version{}, err
	}
	commitObj, err := repo.CommitObject(resolved)
	if err != nil {
		return "", Version{}, ErrVersionNotFound
	}
	file, err := commitObj.File(docType + ".md")
	if err != nil {
		return "", Version{}, ErrVersionNotFound
	}
	contents, err := file.Contents()
	if err != nil {
		return "", Version{}, fmt.Errorf("read %s: %w", file.Name, err)
	}
	return contents, toVersion(commitObj, docType), nil
}

func (a *Archive) openOrInit(userID string) (*git.Repository, error) {
	path := a.repoPath(userID)
	repo, err := git.PlainOpen(path)
	if err == nil {
		return repo, nil
	}
	if !errors.Is(err, git.ErrRepositoryNotExists) {
		return nil, fmt.Errorf("open repo: %w", err)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("create repo dir: %w", err)
	}
	repo, err = git.PlainInitWithOptions(path, &git.PlainInitOptions{
		InitOptions: git.InitOptions{DefaultBranch: plumbing.Main},
	})
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func (a *Archive) repoPath(userID string) string {
	return filepath.Join(a.baseDir, userID)
}

func (a *Archive) userLock(userID string) *sync.Mutex {
	a.lockMu.Lock()
	defer a.lockMu.Unlock()
	lock, ok := a.locks[userID]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	a.locks[userID] = lock
	return lock
}

func validate(names ...string) error {
	for _, name := range names {
		if !namePattern.MatchString(name) {
			return ErrInvalidName
		}
	}
	return nil
}

func toVersion(commitObj *object.Commit, docType string) Version {
	return Version{
		Hash:         commitObj.Hash.String(),
		DocumentType: docType,
		Message:      commitObj.Message,
		Author:       commitObj.Author.Name,
		CreatedAt:    commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' || r == '.' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

var shortHashPattern = regexp.MustCompile(`^[0-9a-f]{4,40}$`)

func resolveHash(repo *git.Repository, hash string) (plumbing.Hash, error) {
	if !shortHashPattern.MatchString(hash) {
		return plumbing.ZeroHash, ErrVersionNotFound
	}
	if len(hash) == 40 {
		return plumbing.NewHash(hash), nil
	}
	resolved, err := repo.ResolveRevision(plumbing.Revision(hash))
	if err != nil {
		return plumbing.ZeroHash, ErrVersionNotFound
	}
	return *resolved, nil
}
