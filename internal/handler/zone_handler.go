/*
Package handler provides HTTP handler functions for zone management and
thumbnail storage.
*/
package handler

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ArchSirius/log3900-server/internal/app/db"
	"github.com/ArchSirius/log3900-server/internal/app/storage"
	"github.com/ArchSirius/log3900-server/internal/app/zone"
	"github.com/ArchSirius/log3900-server/internal/pkg/auth/jwt"
	"github.com/ArchSirius/log3900-server/internal/pkg/errs"
	"github.com/ArchSirius/log3900-server/internal/pkg/logx"
	"github.com/ArchSirius/log3900-server/internal/pkg/req"
	"github.com/ArchSirius/log3900-server/internal/pkg/resp"
)

type NodeInput struct {
	Type     string        `json:"type"`
	Position *zone.Vector3 `json:"position,omitempty"`
	Angle    *float64      `json:"angle,omitempty"`
	Scale    *zone.Vector3 `json:"scale,omitempty"`
	Parent   string        `json:"parent,omitempty"`
}

type CreateZoneInput struct {
	Name   string      `json:"name"`
	Secret string      `json:"secret,omitempty"`
	Nodes  []NodeInput `json:"nodes,omitempty"`
}

// HandleCreateZone creates a zone, optionally secret-protected and seeded
// with initial nodes.
func HandleCreateZone(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input CreateZoneInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if strings.TrimSpace(input.Name) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneNameRequired))
			return
		}

		for _, n := range input.Nodes {
			if !zone.ValidNodeType(n.Type) {
				resp.RespondError(w, r, errs.NewError(errs.ErrNodeTypeInvalid, n.Type))
				return
			}
		}

		now := time.Now()
		z := &zone.Zone{
			ID:        uuid.NewString(),
			Name:      input.Name,
			CreatedBy: identity.ID,
			UpdatedBy: identity.ID,
			CreatedAt: now,
			UpdatedAt: now,
		}

		if input.Secret != "" {
			hash, err := zone.HashSecret(input.Secret)
			if err != nil {
				resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
				return
			}
			z.Private = true
			z.SecretHash = hash
		}

		z.Nodes = make([]*zone.Node, 0, len(input.Nodes))
		for _, in := range input.Nodes {
			z.Nodes = append(z.Nodes, buildNode(in, identity.ID, now))
		}

		if err := deps.Zones.CreateZone(r.Context(), z); err != nil {
			logx.Error(err, "failed to create zone", "user_id", identity.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"zone": z})
	}
}

func buildNode(in NodeInput, userID string, now time.Time) *zone.Node {
	n := &zone.Node{
		ID:        uuid.NewString(),
		Type:      in.Type,
		Scale:     zone.Vector3{X: 1, Y: 1, Z: 1},
		Parent:    in.Parent,
		CreatedBy: userID,
		UpdatedBy: userID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if in.Position != nil {
		n.Position = *in.Position
	}
	if in.Angle != nil {
		n.Angle = *in.Angle
	}
	if in.Scale != nil {
		n.Scale = *in.Scale
	}
	return n
}

// HandleListZones returns every zone without nodes.
func HandleListZones(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		zones, err := deps.Zones.ListZones(r.Context())
		if err != nil {
			logx.Error(err, "failed to list zones")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"zones": zones})
	}
}

// HandleGetZone returns a zone populated with its nodes.
func HandleGetZone(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		z, err := deps.Zones.GetZone(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
				return
			}
			logx.Error(err, "failed to load zone")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"zone": z})
	}
}

type UpdateZoneInput struct {
	Name   string  `json:"name"`
	Secret *string `json:"secret,omitempty"`

	// ThumbnailData carries an inline base64 thumbnail; ThumbnailType its MIME
	// type. When present the bytes are stored server-side and the zone's
	// thumbnail key updated.
	ThumbnailData string `json:"thumbnailData,omitempty"`
	ThumbnailType string `json:"thumbnailType,omitempty"`
}

// HandleUpdateZone updates a zone's metadata. Only the creator may update.
func HandleUpdateZone(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input UpdateZoneInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		z, err := deps.Zones.GetZone(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
				return
			}
			logx.Error(err, "failed to load zone for update")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if z.CreatedBy != identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneAccessDenied))
			return
		}

		if strings.TrimSpace(input.Name) == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneNameRequired))
			return
		}
		z.Name = input.Name

		if input.Secret != nil {
			if *input.Secret == "" {
				z.Private = false
				z.SecretHash = ""
			} else {
				hash, err := zone.HashSecret(*input.Secret)
				if err != nil {
					resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
					return
				}
				z.Private = true
				z.SecretHash = hash
			}
		}

		if input.ThumbnailData != "" {
			key, customErr := uploadInlineThumbnail(r, deps, z.ID, input.ThumbnailData, input.ThumbnailType)
			if customErr != nil {
				resp.RespondError(w, r, customErr)
				return
			}
			z.Thumbnail = key
		}

		z.UpdatedBy = identity.ID
		if err := deps.Zones.UpdateZone(r.Context(), z); err != nil {
			logx.Error(err, "failed to update zone", "zone_id", z.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{"zone": z})
	}
}

// uploadInlineThumbnail decodes and stores an inline base64 thumbnail,
// returning its storage key.
func uploadInlineThumbnail(r *http.Request, deps *AppDeps, zoneID, data, mimeType string) (string, *errs.CustomError) {
	ext := extForMIME(mimeType)
	if ext == "" {
		return "", errs.NewError(errs.ErrThumbnailTypeInvalid)
	}

	raw, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return "", errs.NewError(errs.ErrInvalidParams)
	}
	if customErr := storage.ValidateFileSize(int64(len(raw))); customErr != nil {
		return "", customErr
	}

	key := fmt.Sprintf("zones/%s/thumbnail%s", zoneID, ext)
	if err := deps.StorageService.Upload(r.Context(), key, mimeType, bytes.NewReader(raw)); err != nil {
		logx.Error(err, "failed to store inline thumbnail", "zone_id", zoneID)
		return "", errs.NewError(errs.ErrFileStorageFailed)
	}
	return key, nil
}

func extForMIME(mimeType string) string {
	for ext, mime := range storage.ExtToMIME {
		if mime == strings.ToLower(mimeType) {
			return ext
		}
	}
	return ""
}

// HandleDeleteZone removes a zone and its nodes. Only the creator may delete.
func HandleDeleteZone(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		z, err := deps.Zones.GetZone(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
				return
			}
			logx.Error(err, "failed to load zone for delete")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if z.CreatedBy != identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneAccessDenied))
			return
		}

		if err := deps.Zones.DeleteZone(r.Context(), z.ID); err != nil {
			logx.Error(err, "failed to delete zone", "zone_id", z.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}

		if z.Thumbnail != "" {
			if err := deps.StorageService.Delete(r.Context(), z.Thumbnail); err != nil {
				logx.Error(err, "failed to delete zone thumbnail", "zone_id", z.ID)
			}
		}

		resp.RespondSuccess(w, r, map[string]any{"zoneId": z.ID})
	}
}

type PresignThumbnailInput struct {
	FileName string `json:"fileName"`
	MimeType string `json:"mimeType"`
	FileSize int64  `json:"fileSize"`
}

// HandlePresignThumbnailUpload returns a presigned URL the client uploads the
// zone's thumbnail to directly.
func HandlePresignThumbnailUpload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := jwt.GetPayloadFromContext(r)
		if identity == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		var input PresignThumbnailInput
		if customErr := req.BindJSON(r, &input); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		if customErr := storage.ValidateFileType(input.FileName, input.MimeType); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}
		if customErr := storage.ValidateFileSize(input.FileSize); customErr != nil {
			resp.RespondError(w, r, customErr)
			return
		}

		zoneID := chi.URLParam(r, "id")
		z, err := deps.Zones.GetZone(r.Context(), zoneID)
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
				return
			}
			logx.Error(err, "failed to load zone for presign")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if z.CreatedBy != identity.ID {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneAccessDenied))
			return
		}

		key := fmt.Sprintf("zones/%s/%s", zoneID, input.FileName)
		url, err := deps.StorageService.PresignUpload(r.Context(), key, input.MimeType, input.FileSize, storage.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "failed to presign thumbnail upload", "zone_id", zoneID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"uploadUrl": url,
			"key":       key,
			"expiresIn": int(storage.PresignedURLDuration.Seconds()),
		})
	}
}

// HandlePresignThumbnailDownload returns a presigned download URL for a
// zone's stored thumbnail.
func HandlePresignThumbnailDownload(deps *AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if jwt.GetPayloadFromContext(r) == nil {
			resp.RespondError(w, r, errs.NewError(errs.ErrUnauthorized))
			return
		}

		z, err := deps.Zones.GetZone(r.Context(), chi.URLParam(r, "id"))
		if err != nil {
			if errors.Is(err, db.ErrNotFound) {
				resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
				return
			}
			logx.Error(err, "failed to load zone for thumbnail download")
			resp.RespondError(w, r, errs.NewError(errs.ErrUnknown))
			return
		}
		if z.Thumbnail == "" {
			resp.RespondError(w, r, errs.NewError(errs.ErrZoneNotFound))
			return
		}

		url, err := deps.StorageService.PresignDownload(r.Context(), z.Thumbnail, storage.PresignedURLDuration)
		if err != nil {
			logx.Error(err, "failed to presign thumbnail download", "zone_id", z.ID)
			resp.RespondError(w, r, errs.NewError(errs.ErrFileStorageFailed))
			return
		}

		resp.RespondSuccess(w, r, map[string]any{
			"downloadUrl": url,
			"expiresIn":   int(storage.PresignedURLDuration.Seconds()),
		})
	}
}
