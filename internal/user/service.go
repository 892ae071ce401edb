package user

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"

	"privacyx/internal/auth"
	"privacyx/internal/store"
)

const lockStripes = 64

// dummyHash is compared against when the username is unknown so that login
// timing does not reveal which usernames exist.
var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("privacyx-dummy-secret"), bcrypt.DefaultCost)

// Credentials is the signup/login form input.
type Credentials struct {
	Username string `validate:"required,min=3,max=64,username"`
	Password string `validate:"required,min=6,max=72"`
}

// Session is what a successful signup or login hands back to the caller.
type Session struct {
	Username  string
	Token     string
	ExpiresAt time.Time
}

// Service registers users and tracks who is logged in. Credentials maps
// username to bcrypt hash, Sessions maps username to the active session id.
type Service struct {
	Credentials store.KV
	Sessions    store.KV
	Tokens      *auth.TokenIssuer

	validate *validator.Validate
	locks    [lockStripes]sync.Mutex
}

func NewService(credentials, sessions store.KV, tokens *auth.TokenIssuer) *Service {
	v := validator.New()
	v.RegisterValidation("username", validUsername)
	return &Service{
		Credentials: credentials,
		Sessions:    sessions,
		Tokens:      tokens,
		validate:    v,
	}
}

// validUsername allows ASCII letters, digits, dot, dash and underscore.
func validUsername(fl validator.FieldLevel) bool {
	for _, r := range fl.Field().String() {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '.', r == '-', r == '_':
		default:
			return false
		}
	}
	return true
}

// ValidationError describes form input that was rejected before any lookup.
type ValidationError struct {
	Field string
	Rule  string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s (%s)", e.Field, e.Rule)
}

func hashPassword(password string) ([]byte, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if errors.Is(err, bcrypt.ErrPasswordTooLong) {
		return nil, &ValidationError{Field: "Password", Rule: "max"}
	}
	return hashed, err
}

func (s *Service) lock(username string) func() {
	h := fnv.New32a()
	h.Write([]byte(username))
	mu := &s.locks[h.Sum32()%lockStripes]
	mu.Lock()
	return mu.Unlock
}

func (s *Service) check(creds Credentials) error {
	err := s.validate.Struct(creds)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		return &ValidationError{Field: verrs[0].Field(), Rule: verrs[0].Tag()}
	}
	return err
}

// Signup registers a new user and logs them in.
func (s *Service) Signup(ctx context.Context, creds Credentials) (*Session, error) {
	log := logrus.WithField("username", creds.Username)
	log.Debug("creating new user")

	if err := s.check(creds); err != nil {
		log.WithError(err).Warn("signup: invalid input")
		return nil, err
	}

	hashed, err := hashPassword(creds.Password)
	if err != nil {
		log.WithError(err).Warn("signup: failed to hash password")
		return nil, err
	}

	unlock := s.lock(creds.Username)
	defer unlock()

	created, err := s.Credentials.PutIfAbsent(ctx, creds.Username, string(hashed))
	if err != nil {
		log.WithError(err).Error("signup: failed to save credentials")
		return nil, err
	}
	if !created {
		log.Warn("signup: username already exists")
		return nil, auth.ErrDuplicateUser
	}

	session, err := s.startSession(ctx, creds.Username)
	if err != nil {
		// credential and session are created together or not at all
		if rmErr := s.Credentials.Remove(ctx, creds.Username); rmErr != nil {
			log.WithError(rmErr).Error("signup: failed to roll back credentials")
			return nil, errors.Join(err, rmErr)
		}
		return nil, err
	}

	log.Info("signup: user created successfully")
	return session, nil
}

// Login checks the secret and creates or re-activates the user's session.
func (s *Service) Login(ctx context.Context, creds Credentials) (*Session, error) {
	log := logrus.WithField("username", creds.Username)
	log.Debug("user login attempt")

	if creds.Username == "" || creds.Password == "" {
		return nil, auth.ErrInvalidCredentials
	}

	unlock := s.lock(creds.Username)
	defer unlock()

	hash, err := s.Credentials.Get(ctx, creds.Username)
	switch {
	case errors.Is(err, store.ErrNotFound):
		bcrypt.CompareHashAndPassword(dummyHash, []byte(creds.Password))
		log.Warn("login: unknown username")
		return nil, auth.ErrInvalidCredentials
	case err != nil:
		log.WithError(err).Error("login: failed to load credentials")
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(creds.Password)); err != nil {
		log.Warn("login: invalid password provided")
		return nil, auth.ErrInvalidCredentials
	}

	session, err := s.startSession(ctx, creds.Username)
	if err != nil {
		return nil, err
	}

	log.Info("user logged in successfully")
	return session, nil
}

// startSession re-uses the user's active session id or registers a new one.
// Callers hold the username lock.
func (s *Service) startSession(ctx context.Context, username string) (*Session, error) {
	sid, err := s.Sessions.Get(ctx, username)
	if err == nil {
		// extend the registry entry so it outlives the new token
		err = s.Sessions.Put(ctx, username, sid)
	} else if errors.Is(err, store.ErrNotFound) {
		sid = auth.NewSessionID()
		var created bool
		created, err = s.Sessions.PutIfAbsent(ctx, username, sid)
		if err == nil && !created {
			// another replica registered a session first
			sid, err = s.Sessions.Get(ctx, username)
		}
	}
	if err != nil {
		logrus.WithField("username", username).WithError(err).Error("failed to register session")
		return nil, fmt.Errorf("could not save session: %w", err)
	}

	token, err := s.Tokens.Generate(username, sid)
	if err != nil {
		return nil, fmt.Errorf("could not process login: %w", err)
	}

	return &Session{
		Username:  username,
		Token:     token,
		ExpiresAt: time.Now().Add(s.Tokens.TTL()),
	}, nil
}

// Logout ends the user's session. Logging out twice is not an error.
func (s *Service) Logout(ctx context.Context, username string) error {
	if username == "" {
		return nil
	}

	unlock := s.lock(username)
	defer unlock()

	if err := s.Sessions.Remove(ctx, username); err != nil {
		logrus.WithField("username", username).WithError(err).Error("logout: failed to remove session")
		return err
	}

	logrus.WithField("username", username).Info("session revoked successfully")
	return nil
}

// Authenticate resolves a session token to its username. The token must be
// validly signed and name the session currently registered for that user.
func (s *Service) Authenticate(ctx context.Context, token string) (string, error) {
	claims, err := s.Tokens.Validate(token)
	if err != nil {
		return "", err
	}

	sid, err := s.Sessions.Get(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		logrus.WithField("username", claims.Subject).Debug("authenticate: no active session")
		return "", auth.ErrNotAuthenticated
	}
	if err != nil {
		logrus.WithField("username", claims.Subject).WithError(err).Error("authenticate: session lookup failed")
		return "", err
	}
	if sid != claims.ID {
		logrus.WithField("username", claims.Subject).Debug("authenticate: stale session token")
		return "", auth.ErrNotAuthenticated
	}
	return claims.Subject, nil
}

// Bootstrap creates an account if it does not exist yet. It is used to seed
// an administrator on startup and never overwrites an existing secret.
func (s *Service) Bootstrap(ctx context.Context, creds Credentials) error {
	if err := s.check(creds); err != nil {
		return err
	}
	hashed, err := hashPassword(creds.Password)
	if err != nil {
		return err
	}

	unlock := s.lock(creds.Username)
	defer unlock()

	created, err := s.Credentials.PutIfAbsent(ctx, creds.Username, string(hashed))
	if err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"username": creds.Username,
		"created":  created,
	}).Info("bootstrap account checked")
	return nil
}
