// Package gitrepo keeps a revision history per bloc: every clause insert and
// header save commits the resolution document and its rendered text to a
// plain git repository on disk.
package gitrepo

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"rostrum/api/internal/resolution"

	git "github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"
	"github.com/go-git/go-git/v5/plumbing/object"
)

type CommitInfo struct {
	Hash      string    `json:"hash"`
	Message   string    `json:"message"`
	Author    string    `json:"author"`
	CreatedAt time.Time `json:"createdAt"`
}

type Service struct {
	baseDir string
	lockMu  sync.Mutex
	locks   map[string]*sync.Mutex
}

func New(baseDir string) *Service {
	return &Service{
		baseDir: baseDir,
		locks:   make(map[string]*sync.Mutex),
	}
}

// Commit records the resolution state as a new revision, initializing the
// bloc's repository on first use. Everything lands on the default branch;
// there is no branching model.
func (s *Service) Commit(committee, bloc string, res resolution.Resolution, author, message string) (CommitInfo, error) {
	key := repoKey(committee, bloc)
	lock := s.repoLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := s.openOrInit(key)
	if err != nil {
		return CommitInfo{}, err
	}

	worktree, err := repo.Worktree()
	if err != nil {
		return CommitInfo{}, fmt.Errorf("open worktree: %w", err)
	}

	payload, err := json.MarshalIndent(res, "", "  ")
	if err != nil {
		return CommitInfo{}, fmt.Errorf("marshal resolution: %w", err)
	}
	root := worktree.Filesystem.Root()
	if err := os.WriteFile(filepath.Join(root, "resolution.json"), append(payload, '\n'), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write resolution.json: %w", err)
	}
	if err := os.WriteFile(filepath.Join(root, "resolution.txt"), []byte(resolution.Render(res)+"\n"), 0o644); err != nil {
		return CommitInfo{}, fmt.Errorf("write resolution.txt: %w", err)
	}
	if _, err := worktree.Add("resolution.json"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add resolution.json: %w", err)
	}
	if _, err := worktree.Add("resolution.txt"); err != nil {
		return CommitInfo{}, fmt.Errorf("git add resolution.txt: %w", err)
	}

	hash, err := worktree.Commit(message, &git.CommitOptions{
		AllowEmptyCommits: true,
		Author: &object.Signature{
			Name:  author,
			Email: fmt.Sprintf("%s@local.rostrum.dev", sanitizeEmail(author)),
			When:  time.Now(),
		},
	})
	if err != nil {
		return CommitInfo{}, fmt.Errorf("commit resolution: %w", err)
	}

	commitObj, err := repo.CommitObject(hash)
	if err != nil {
		return CommitInfo{}, fmt.Errorf("read commit object: %w", err)
	}
	return toCommitInfo(commitObj), nil
}

// History lists revisions newest first, up to limit (0 for all). A bloc with
// no recorded revisions yet yields an empty list.
func (s *Service) History(committee, bloc string, limit int) ([]CommitInfo, error) {
	key := repoKey(committee, bloc)
	lock := s.repoLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(key))
	if errors.Is(err, git.ErrRepositoryNotExists) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open repo: %w", err)
	}

	head, err := repo.Head()
	if errors.Is(err, plumbing.ErrReferenceNotFound) {
		return []CommitInfo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("resolve head: %w", err)
	}

	iter, err := repo.Log(&git.LogOptions{From: head.Hash()})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	items := make([]CommitInfo, 0, limit)
	count := 0
	err = iter.ForEach(func(commitObj *object.Commit) error {
		items = append(items, toCommitInfo(commitObj))
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

// ResolutionAt reads the resolution document recorded by a revision.
func (s *Service) ResolutionAt(committee, bloc, hash string) (resolution.Resolution, error) {
	key := repoKey(committee, bloc)
	lock := s.repoLock(key)
	lock.Lock()
	defer lock.Unlock()

	repo, err := git.PlainOpen(s.repoPath(key))
	if err != nil {
		return resolution.Resolution{}, fmt.Errorf("open repo: %w", err)
	}
	commitObj, err := findCommit(repo, hash)
	if err != nil {
		return resolution.Resolution{}, err
	}
	file, err := commitObj.File("resolution.json")
	if err != nil {
		return resolution.Resolution{}, fmt.Errorf("load resolution.json from commit: %w", err)
	}
	reader, err := file.Reader()
	if err != nil {
		return resolution.Resolution{}, fmt.Errorf("open resolution reader: %w", err)
	}
	defer reader.Close()

	raw, err := io.ReadAll(reader)
	if err != nil {
		return resolution.Resolution{}, fmt.Errorf("read resolution bytes: %w", err)
	}
	var res resolution.Resolution
	if err := json.Unmarshal(raw, &res); err != nil {
		return resolution.Resolution{}, fmt.Errorf("decode commit resolution: %w", err)
	}
	return res, nil
}

func (s *Service) openOrInit(key string) (*git.Repository, error) {
	path := s.repoPath(key)
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
	repo, err = git.PlainInit(path, false)
	if err != nil {
		return nil, fmt.Errorf("init repo: %w", err)
	}
	return repo, nil
}

func findCommit(repo *git.Repository, shortHash string) (*object.Commit, error) {
	iter, err := repo.Log(&git.LogOptions{All: true})
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	defer iter.Close()

	var found *object.Commit
	err = iter.ForEach(func(commitObj *object.Commit) error {
		if commitObj.Hash.String() == shortHash || commitObj.Hash.String()[:7] == shortHash {
			found = commitObj
			return io.EOF
		}
		return nil
	})
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("iterate log: %w", err)
	}
	if found == nil {
		return nil, fmt.Errorf("commit %s not found", shortHash)
	}
	return found, nil
}

func repoKey(committee, bloc string) string {
	return filepath.Join(sanitizePathPart(committee), sanitizePathPart(bloc))
}

func (s *Service) repoPath(key string) string {
	return filepath.Join(s.baseDir, key)
}

func (s *Service) repoLock(key string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[key]
	if ok {
		return lock
	}
	lock = &sync.Mutex{}
	s.locks[key] = lock
	return lock
}

func toCommitInfo(commitObj *object.Commit) CommitInfo {
	return CommitInfo{
		Hash:      commitObj.Hash.String()[:7],
		Message:   commitObj.Message,
		Author:    commitObj.Author.Name,
		CreatedAt: commitObj.Author.When,
	}
}

func sanitizeEmail(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') {
			out = append(out, r)
			continue
		}
		if r == ' ' || r == '-' || r == '_' {
			out = append(out, '.')
		}
	}
	if len(out) == 0 {
		return "user"
	}
	return string(out)
}

// sanitizePathPart keeps bloc names with slashes or dots from escaping the
// repos directory.
func sanitizePathPart(input string) string {
	out := make([]rune, 0, len(input))
	for _, r := range input {
		switch {
		case (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9'):
			out = append(out, r)
		case r == '-' || r == '_':
			out = append(out, r)
		case r == ' ':
			out = append(out, '-')
		}
	}
	if len(out) == 0 {
		return "unnamed"
	}
	return string(out)
}
