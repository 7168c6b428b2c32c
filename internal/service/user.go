package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/rs/xid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/sakif/snipspace/internal/apperror"
	"github.com/sakif/snipspace/internal/model"
	"github.com/sakif/snipspace/internal/repository"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 72 // bcrypt ignores anything past 72 bytes
	MaxBioLength      = 2000
	maxEmailLength    = 254
)

// PasswordHasher hashes and checks credentials. auth.PasswordService
// satisfies it.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Verify(hash, plaintext string) error
}

// UserService manages accounts. An account and its root folder are created
// together, and removing an account removes everything it owns.
type UserService struct {
	core
	namespaces *NamespaceService
	snippets   *SnippetService
	passwords  PasswordHasher

	// roots collapses concurrent root lookups for the same user.
	roots singleflight.Group
}

func NewUserService(d Deps, namespaces *NamespaceService, snippets *SnippetService, passwords PasswordHasher) *UserService {
	return &UserService{
		core:       newCore(d),
		namespaces: namespaces,
		snippets:   snippets,
		passwords:  passwords,
	}
}

// Create registers a new account and its root folder in one transaction.
//
// ERRORS:
//   - ValidationError: malformed email, password too short or too long
//   - ConflictError: the email is already registered
func (s *UserService) Create(ctx context.Context, email, password string) (*model.User, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}
	if err := validatePassword(password); err != nil {
		return nil, err
	}

	// Hashing is slow, keep it out of the transaction.
	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("service/user: %w", err)
	}

	id := xid.New().String()
	var created *model.User
	err = s.mutate(ctx, "user.create", id, func(ctx context.Context, tx repository.Tx) error {
		now := s.now()
		u := &model.User{
			ID:           id,
			Email:        email,
			PasswordHash: hash,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if err := tx.CreateUser(ctx, u); err != nil {
			if errors.Is(err, apperror.ErrConflict) {
				return &apperror.AppError{
					Err:     apperror.ErrConflict,
					Message: "email already registered",
					Field:   "email",
				}
			}
			return err
		}
		root, err := s.namespaces.createRootTx(ctx, tx, id)
		if err != nil {
			return err
		}
		u.Namespace = root.ID
		created = u
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("user created", zap.String("userId", created.ID))
	return created, nil
}

// Get returns the user with Namespace set to their root folder id.
func (s *UserService) Get(ctx context.Context, id string) (*model.User, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	u, err := s.store.GetUserByID(ctx, id)
	if err != nil {
		return nil, classify("user.get", err)
	}

	root, err := s.rootOf(ctx, id)
	switch {
	case err == nil:
		u.Namespace = root.ID
	case errors.Is(err, apperror.ErrNotFound):
		s.logger.Warn("user has no root folder", zap.String("userId", id))
	default:
		return nil, classify("user.get", err)
	}
	return u, nil
}

// rootOf looks up userID's root folder, sharing one query between
// concurrent callers. The shared query ignores cancellation so one caller
// giving up does not fail the others.
func (s *UserService) rootOf(ctx context.Context, userID string) (*model.Node, error) {
	v, err, _ := s.roots.Do(userID, func() (any, error) {
		return s.store.GetRoot(context.WithoutCancel(ctx), userID)
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.Node), nil
}

// CheckCredentials returns the account matching email and password. Unknown
// emails and wrong passwords produce the same error.
func (s *UserService) CheckCredentials(ctx context.Context, email, password string) (*model.User, error) {
	invalid := apperror.Unauthorized("invalid email or password")

	email, err := normalizeEmail(email)
	if err != nil {
		return nil, invalid
	}
	u, err := s.store.GetUserByEmail(ctx, email)
	if errors.Is(err, apperror.ErrNotFound) {
		return nil, invalid
	}
	if err != nil {
		return nil, classify("user.check_credentials", err)
	}
	if err := s.passwords.Verify(u.PasswordHash, password); err != nil {
		return nil, invalid
	}
	return s.Get(ctx, u.ID)
}

// Update applies patch to the profile. A missing id yields MatchedCount 0.
func (s *UserService) Update(ctx context.Context, id string, patch model.UserPatch) (model.UpdateResult, error) {
	if patch.Bio != nil && len(*patch.Bio) > MaxBioLength {
		return model.UpdateResult{}, apperror.ValidationFailed("bio",
			fmt.Sprintf("bio must be %d characters or less", MaxBioLength))
	}

	var result model.UpdateResult
	err := s.mutate(ctx, "user.update", id, func(ctx context.Context, tx repository.Tx) error {
		u, err := tx.GetUserByID(ctx, id)
		if errors.Is(err, apperror.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if patch.Bio != nil {
			u.Bio = *patch.Bio
		}
		u.UpdatedAt = s.touch(u.UpdatedAt)
		result.MatchedCount, err = tx.UpdateUser(ctx, u)
		return err
	})
	if err != nil {
		return model.UpdateResult{}, err
	}
	return result, nil
}

// Remove deletes the account and everything it owns: each snippet through
// the snippet removal path (so annotations on it go too), then the whole
// tree, then the user row. A missing id yields DeletedCount 0.
//
// Annotations the user left on other people's snippets are kept.
func (s *UserService) Remove(ctx context.Context, id string) (model.DeleteResult, error) {
	var (
		result   model.DeleteResult
		cascaded = map[string]int{}
	)
	err := s.mutate(ctx, "user.remove", id, func(ctx context.Context, tx repository.Tx) error {
		if _, err := tx.GetUserByID(ctx, id); err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				return nil
			}
			return err
		}

		summaries, err := tx.ListSnippetSummaries(ctx, id)
		if err != nil {
			return err
		}
		for _, sum := range summaries {
			_, counts, err := s.snippets.removeInTx(ctx, tx, sum.ID, id)
			if err != nil {
				return err
			}
			for kind, c := range counts {
				cascaded[kind] += c
			}
			cascaded["snippet"]++
		}

		nodes, err := tx.ListNodes(ctx, id)
		if err != nil {
			return err
		}
		ids := make([]string, len(nodes))
		for i, n := range nodes {
			ids[i] = n.ID
		}
		if _, err := tx.DeleteNodes(ctx, ids); err != nil {
			return err
		}

		result.DeletedCount, err = tx.DeleteUser(ctx, id)
		return err
	})
	if err != nil {
		return model.DeleteResult{}, err
	}

	s.snippets.recordCascade(cascaded)
	if result.DeletedCount > 0 {
		s.logger.Info("user removed",
			zap.String("userId", id),
			zap.Int("snippets", cascaded["snippet"]),
		)
	}
	return result, nil
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", apperror.ValidationFailed("email", "email is required")
	}
	if len(email) > maxEmailLength {
		return "", apperror.ValidationFailed("email", "email is too long")
	}
	addr, err := mail.ParseAddress(email)
	if err != nil || addr.Address != email {
		return "", apperror.ValidationFailed("email", fmt.Sprintf("%q is not a valid email address", email))
	}
	return email, nil
}

func validatePassword(password string) error {
	switch {
	case len(password) < MinPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be at least %d characters", MinPasswordLength))
	case len(password) > MaxPasswordLength:
		return apperror.ValidationFailed("password",
			fmt.Sprintf("password must be %d bytes or fewer", MaxPasswordLength))
	}
	return nil
}
