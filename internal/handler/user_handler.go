/*
Package handler provides HTTP handler functions for user profiles and friendships.
*/
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/pkg/auth/jwt"
	"github.com/ArchSirius/log3900-server/internal/pkg/errs"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
	"github.com/ArchSirius/log3900-server/internal/pkg/req"
	"github.com/ArchSirius/log3900-server/internal/pkg/resp"
)

// HandleGetUserProfile retrieves the current authenticated user's profile.
func HandleGetUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		dbUser, err := deps.Users.GetUser(r.Context(), identity.ID)
		if err != nil {
			logx.Warn("get_user_profile: user not found", "id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": dbUser})
	}
}

type UpdateProfileInput struct {
	Username string `json:"username"`
	Name     string `json:"name"`
	Email    string `json:"email"`
}

// HandleUpdateUserProfile overwrites the authenticated user's profile fields.
func HandleUpdateUserProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateProfileInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if !usernameRegex.MatchString(input.Username) {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidUsername))
			return
		}

		dbUser, err := deps.Users.GetUser(r.Context(), identity.ID)
		if err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		dbUser.Username = input.Username
		dbUser.Name = input.Name
		dbUser.Email = input.Email

		if err := deps.Users.UpdateProfile(r.Context(), dbUser); err != nil {
			if db.IsUniqueViolation(err) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserAlreadyExists))
				return
			}
			logx.Error(err, "failed to update user profile", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": dbUser})
	}
}

// HandleListUsers returns every account's public reference.
func HandleListUsers(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		users, err := deps.Users.ListUsers(r.Context())
		if err != nil {
			logx.Error(err, "failed to list users")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"users": users})
	}
}

// HandleGetPublicProfile returns another user's public projection.
func HandleGetPublicProfile(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		userID := chi.URLParam(r, "id")
		dbUser, err := deps.Users.GetUser(r.Context(), userID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
				return
			}
			logx.Error(err, "failed to load user", "user_id", userID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"user": dbUser.Profile()})
	}
}

type FriendInput struct {
	FriendID string `json:"friendId"`
}

// HandleAddFriend records a friendship from the authenticated user.
func HandleAddFriend(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input FriendInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if input.FriendID == "" || input.FriendID == identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if _, err := deps.Users.GetUser(r.Context(), input.FriendID); err != nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUserNotFound))
			return
		}

		if err := deps.Users.AddFriend(r.Context(), identity.ID, input.FriendID); err != nil {
			logx.Error(err, "failed to add friend", "user_id", identity.ID, "friend_id", input.FriendID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"friendId": input.FriendID})
	}
}

// HandleRemoveFriend deletes a friendship from the authenticated user.
func HandleRemoveFriend(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		friendID := chi.URLParam(r, "id")
		if friendID == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrInvalidParams))
			return
		}

		if err := deps.Users.RemoveFriend(r.Context(), identity.ID, friendID); err != nil {
			logx.Error(err, "failed to remove friend", "user_id", identity.ID, "friend_id", friendID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"friendId": friendID})
	}
}
