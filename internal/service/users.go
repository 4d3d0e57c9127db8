package service

import (
	"context"
	"errors"

	"github.com/marcwilhelm/authhub/internal/domain/user"
	"github.com/marcwilhelm/authhub/internal/repo/postgres"
)

type UserDirectory interface {
	GetByID(ctx context.Context, id string) (user.User, error)
	UpdateProfile(ctx context.Context, id string, name, email *string) (user.User, error)
	List(ctx context.Context) ([]user.User, error)
	Delete(ctx context.Context, id string) error
}

// UserService covers profile management and the admin user operations.
type UserService struct {
	store UserDirectory
}

func NewUserService(store UserDirectory) *UserService {
	return &UserService{store: store}
}

func (s *UserService) GetUser(ctx context.Context, id string) (user.Public, error) {
	u, err := s.store.GetByID(ctx, id)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return user.Public{}, errUserNotFound
		}
		return user.Public{}, err
	}

	return u.Public(), nil
}

func (s *UserService) UpdateProfile(ctx context.Context, id string, name, email *string) (user.Public, error) {
	u, err := s.store.UpdateProfile(ctx, id, name, email)

	if err != nil {
		switch {
		case errors.Is(err, postgres.ErrUserNotFound):
			return user.Public{}, errUserNotFound
		case errors.Is(err, postgres.ErrEmailTaken):
			return user.Public{}, errEmailTaken
		}
		return user.Public{}, err
	}

	return u.Public(), nil
}

func (s *UserService) ListUsers(ctx context.Context) ([]user.Public, error) {
	users, err := s.store.List(ctx)

	if err != nil {
		return nil, err
	}

	out := make([]user.Public, 0, len(users))

	for _, u := range users {
		out = append(out, u.Public())
	}

	return out, nil
}

// DeleteUser removes another user's account. Admins cannot delete themselves.
func (s *UserService) DeleteUser(ctx context.Context, actorID, targetID string) error {
	if actorID == targetID {
		return errSelfDeletion
	}

	err := s.store.Delete(ctx, targetID)

	if err != nil {
		if errors.Is(err, postgres.ErrUserNotFound) {
			return errUserNotFound
		}
		return err
	}

	return nil
}
