package service

import (
	"context"
	stderrors "errors"
	"strconv"

	"golang.org/x/crypto/bcrypt"

	apperrors "github.com/portal-hub/internal/errors"
	"github.com/portal-hub/internal/logging"
	"github.com/portal-hub/internal/models"
	"github.com/portal-hub/internal/storage"
)

// AccountService handles registration, login and the demo account
type AccountService struct {
	users      storage.UserStore
	bcryptCost int
	// compared against when a username is unknown so both login failures cost the same
	dummyHash []byte
	logger    *logging.Logger
}

// NewAccountService creates an account service hashing with bcryptCost
func NewAccountService(users storage.UserStore, bcryptCost int, logger *logging.Logger) *AccountService {
	if bcryptCost < bcrypt.MinCost {
		bcryptCost = bcrypt.DefaultCost
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	dummy, _ := bcrypt.GenerateFromPassword([]byte("portal-hub-dummy"), bcryptCost)

	return &AccountService{
		users:      users,
		bcryptCost: bcryptCost,
		dummyHash:  dummy,
		logger:     logger,
	}
}

// Register validates input, hashes the password and creates the user with
// its default settings. A taken username yields USERNAME_TAKEN.
func (s *AccountService) Register(ctx context.Context, input models.NewUser) (*models.PublicUser, error) {
	if err := ValidateStruct(input); err != nil {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), s.bcryptCost)
	if err != nil {
		if stderrors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperrors.NewValidationError(map[string]string{"password": "must be at most 72 bytes"})
		}
		return nil, apperrors.NewInternalError("failed to hash password", err)
	}
	input.Password = string(hash)

	user, ok := s.users.RegisterUser(input)
	if !ok {
		return nil, apperrors.NewUsernameTakenError(input.Username)
	}

	logging.FromContext(ctx).WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("User registered")

	public := user.Public()
	return &public, nil
}

// Login checks username and password and returns the public user view
func (s *AccountService) Login(ctx context.Context, username, password string) (*models.PublicUser, error) {
	missing := make(map[string]string)
	if username == "" {
		missing["username"] = "is required"
	}
	if password == "" {
		missing["password"] = "is required"
	}
	if len(missing) > 0 {
		return nil, apperrors.NewValidationError(missing)
	}

	user, ok := s.users.GetUserByUsername(username)
	if !ok {
		_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
		return nil, apperrors.NewInvalidCredentialsError()
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(password)); err != nil {
		logging.FromContext(ctx).WithField("user_id", user.ID).Debug("Password mismatch")
		return nil, apperrors.NewInvalidCredentialsError()
	}

	public := user.Public()
	return &public, nil
}

// GetUser returns the public view of user id
func (s *AccountService) GetUser(ctx context.Context, id int64) (*models.PublicUser, error) {
	user, ok := s.users.GetUser(id)
	if !ok {
		return nil, apperrors.NewNotFoundError("user", strconv.FormatInt(id, 10))
	}
	public := user.Public()
	return &public, nil
}

// SeedDemoUser registers the demonstration account. It is idempotent: when
// the username already exists the existing user is returned and created is false.
func (s *AccountService) SeedDemoUser(ctx context.Context, input models.NewUser) (user *models.PublicUser, created bool, err error) {
	if existing, ok := s.users.GetUserByUsername(input.Username); ok {
		public := existing.Public()
		return &public, false, nil
	}

	user, err = s.Register(ctx, input)
	if err != nil {
		var catErr *apperrors.CategorizedError
		if stderrors.As(err, &catErr) && catErr.Code == "USERNAME_TAKEN" {
			existing, _ := s.users.GetUserByUsername(input.Username)
			public := existing.Public()
			return &public, false, nil
		}
		return nil, false, err
	}

	s.logger.WithFields(map[string]interface{}{
		"user_id":  user.ID,
		"username": user.Username,
	}).Info("Demo user seeded")
	return user, true, nil
}
