package handlers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/pixil98/go-town/internal/access"
	"github.com/pixil98/go-town/internal/catalog"
)

const (
	msgUserExists     = "Error: User name is already taken"
	msgNoSuchUser     = "Error: No such user"
	msgBadCredentials = "Error: Invalid user name or password"
	msgPasswordReq    = "Error: password must be specified"
	msgUserStoreErr   = "Error: Unable to reach the user store, please try again"
)

type SignUpRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
	Email    string `json:"email,omitempty"`
	Gender   string `json:"gender,omitempty"`
	Age      string `json:"age,omitempty"`
	City     string `json:"city,omitempty"`
}

// ProfileResponse is a user account as clients see it. The password hash is never included.
type ProfileResponse struct {
	UserName string `json:"userName"`
	Email    string `json:"email"`
	Gender   string `json:"gender"`
	Age      string `json:"age"`
	City     string `json:"city"`
}

func profileOf(u *catalog.UserRecord) *ProfileResponse {
	return &ProfileResponse{
		UserName: u.UserName,
		Email:    u.Email,
		Gender:   u.Gender,
		Age:      u.Age,
		City:     u.City,
	}
}

func (h *Handlers) SignUp(ctx context.Context, req SignUpRequest) Envelope[Empty] {
	name := access.NormalizeName(req.UserName)
	if name == "" {
		return fail[Empty](msgUserRequired)
	}
	if req.Password == "" {
		return fail[Empty](msgPasswordReq)
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), h.hashCost)
	if err != nil {
		slog.ErrorContext(ctx, "hashing password", "error", err)
		return fail[Empty](msgUserStoreErr)
	}

	err = h.catalog.CreateUser(ctx, &catalog.UserRecord{
		UserName:     name,
		PasswordHash: string(hash),
		Email:        req.Email,
		Gender:       req.Gender,
		Age:          req.Age,
		City:         req.City,
		CreatedAt:    time.Now().UTC(),
	})
	if errors.Is(err, catalog.ErrExists) {
		return fail[Empty](msgUserExists)
	}
	if err != nil {
		slog.WarnContext(ctx, "creating user", "error", err)
		return fail[Empty](msgUserStoreErr)
	}

	slog.InfoContext(ctx, "user signed up", "user", name)
	return ok(&Empty{})
}

// CheckUser reports whether an account exists and returns its public profile.
func (h *Handlers) CheckUser(ctx context.Context, userName string) Envelope[ProfileResponse] {
	u, err := h.catalog.GetUser(ctx, access.NormalizeName(userName))
	if errors.Is(err, catalog.ErrNotFound) {
		return fail[ProfileResponse](msgNoSuchUser)
	}
	if err != nil {
		slog.WarnContext(ctx, "reading user", "error", err)
		return fail[ProfileResponse](msgUserStoreErr)
	}
	return ok(profileOf(u))
}

type SignInRequest struct {
	UserName string `json:"userName"`
	Password string `json:"password"`
}

// SignIn checks a name and password pair. Unknown names and wrong passwords
// get the same message.
func (h *Handlers) SignIn(ctx context.Context, req SignInRequest) Envelope[ProfileResponse] {
	u, env, found := h.authenticate(ctx, req.UserName, req.Password)
	if !found {
		return env
	}
	return ok(profileOf(u))
}

// UpdateProfileRequest changes an account. Password must be the current
// password; NewPassword and the profile fields are applied when set.
type UpdateProfileRequest struct {
	UserName    string  `json:"-"`
	Password    string  `json:"password"`
	NewPassword *string `json:"newPassword,omitempty"`
	Email       *string `json:"email,omitempty"`
	Gender      *string `json:"gender,omitempty"`
	Age         *string `json:"age,omitempty"`
	City        *string `json:"city,omitempty"`
}

func (h *Handlers) UpdateProfile(ctx context.Context, req UpdateProfileRequest) Envelope[ProfileResponse] {
	u, env, found := h.authenticate(ctx, req.UserName, req.Password)
	if !found {
		return env
	}

	if req.NewPassword != nil {
		if *req.NewPassword == "" {
			return fail[ProfileResponse](msgPasswordReq)
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(*req.NewPassword), h.hashCost)
		if err != nil {
			slog.ErrorContext(ctx, "hashing password", "error", err)
			return fail[ProfileResponse](msgUserStoreErr)
		}
		u.PasswordHash = string(hash)
	}
	setIf(&u.Email, req.Email)
	setIf(&u.Gender, req.Gender)
	setIf(&u.Age, req.Age)
	setIf(&u.City, req.City)

	if err := h.catalog.UpdateUser(ctx, u); err != nil {
		slog.WarnContext(ctx, "updating user", "error", err)
		return fail[ProfileResponse](msgUserStoreErr)
	}
	return ok(profileOf(u))
}

func (h *Handlers) authenticate(ctx context.Context, userName, password string) (*catalog.UserRecord, Envelope[ProfileResponse], bool) {
	u, err := h.catalog.GetUser(ctx, access.NormalizeName(userName))
	if errors.Is(err, catalog.ErrNotFound) {
		return nil, fail[ProfileResponse](msgBadCredentials), false
	}
	if err != nil {
		slog.WarnContext(ctx, "reading user", "error", err)
		return nil, fail[ProfileResponse](msgUserStoreErr), false
	}

	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return nil, fail[ProfileResponse](msgBadCredentials), false
	}
	return u, Envelope[ProfileResponse]{}, true
}

func setIf(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}
