package http

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/sbaj179/School-Connect-2/internal/model"
)

type profileJSON struct {
	ID         string  `json:"id"`
	SchoolID   string  `json:"school_id"`
	IdentityID *string `json:"identity_id"`
	Role       string  `json:"role"`
	Name       string  `json:"name"`
	Email      *string `json:"email"`
	ExternalID *string `json:"external_id"`
	ClassName  *string `json:"class_name"`
}

type groupJSON struct {
	ID                string  `json:"id"`
	Subject           string  `json:"subject"`
	StudentExternalID *string `json:"student_external_id"`
	CreatedAt         string  `json:"created_at"`
}

type messageJSON struct {
	ID           string `json:"id"`
	GroupID      string `json:"group_id"`
	SenderUserID string `json:"sender_user_id"`
	SenderName   string `json:"sender_name,omitempty"`
	Body         string `json:"body"`
	CreatedAt    string `json:"created_at"`
}

type inboxRow struct {
	Group         groupJSON    `json:"group"`
	LatestMessage *messageJSON `json:"latest_message,omitempty"`
}

func mapProfile(profile *model.Profile) profileJSON {
	return profileJSON{
		ID:         profile.ID,
		SchoolID:   profile.SchoolID,
		IdentityID: profile.IdentityID,
		Role:       profile.Role,
		Name:       profile.Name,
		Email:      profile.Email,
		ExternalID: profile.ExternalID,
		ClassName:  profile.ClassName,
	}
}

func mapGroup(group model.Group) groupJSON {
	return groupJSON{
		ID:                group.ID,
		Subject:           group.Subject,
		StudentExternalID: group.StudentExternalID,
		CreatedAt:         group.CreatedAt.UTC().Format(time.RFC3339),
	}
}

func mapMessage(message model.Message, senderName string) messageJSON {
	return messageJSON{
		ID:           message.ID,
		GroupID:      message.GroupID,
		SenderUserID: message.SenderUserID,
		SenderName:   senderName,
		Body:         message.Body,
		CreatedAt:    message.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// callerProfile gates a request on a valid session and a claimed roster row.
// 404 on an unclaimed identity tells the client to route to /claim.
func (s *Server) callerProfile(w http.ResponseWriter, r *http.Request) *model.Profile {
	ident, ok := s.sessionIdentity(r)
	if !ok {
		writeMessage(w, http.StatusUnauthorized, "Sign in required.")
		return nil
	}
	profile, err := s.store.GetProfileByIdentity(r.Context(), ident.ID)
	if err != nil {
		log.Error().Err(err).Msg("profile lookup failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return nil
	}
	if profile == nil {
		writeMessage(w, http.StatusNotFound, "Profile not claimed.")
		return nil
	}
	return profile
}

func (s *Server) handleProfileMe(w http.ResponseWriter, r *http.Request) {
	profile := s.callerProfile(w, r)
	if profile == nil {
		return
	}
	writeJSON(w, http.StatusOK, mapProfile(profile))
}

func (s *Server) handleInbox(w http.ResponseWriter, r *http.Request) {
	profile := s.callerProfile(w, r)
	if profile == nil {
		return
	}

	groups, err := s.store.ListGroupsForUser(r.Context(), profile.ID)
	if err != nil {
		log.Error().Err(err).Msg("inbox group query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	rows := make([]inboxRow, 0, len(groups))
	if len(groups) == 0 {
		writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
		return
	}

	groupIDs := make([]string, 0, len(groups))
	for _, group := range groups {
		groupIDs = append(groupIDs, group.ID)
	}

	latest, err := s.store.LatestGroupMessages(r.Context(), groupIDs)
	if err != nil {
		log.Error().Err(err).Msg("inbox message query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	for _, group := range groups {
		row := inboxRow{Group: mapGroup(group)}
		if message, ok := latest[group.ID]; ok {
			mapped := mapMessage(message, "")
			row.LatestMessage = &mapped
		}
		rows = append(rows, row)
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"rows": rows})
}

// memberGroup enforces group membership for the caller; non-members get the
// same "Access denied." regardless of whether the group exists.
func (s *Server) memberGroup(w http.ResponseWriter, r *http.Request, profile *model.Profile) *model.Group {
	groupID := chi.URLParam(r, "groupID")

	member, err := s.store.IsGroupMember(r.Context(), groupID, profile.ID)
	if err != nil {
		log.Error().Err(err).Msg("membership query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return nil
	}
	if !member {
		writeMessage(w, http.StatusForbidden, "Access denied.")
		return nil
	}

	group, err := s.store.GetGroup(r.Context(), groupID)
	if err != nil {
		log.Error().Err(err).Msg("group query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return nil
	}
	if group == nil {
		writeMessage(w, http.StatusForbidden, "Access denied.")
		return nil
	}
	return group
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	profile := s.callerProfile(w, r)
	if profile == nil {
		return
	}
	group := s.memberGroup(w, r, profile)
	if group == nil {
		return
	}
	writeJSON(w, http.StatusOK, mapGroup(*group))
}

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	profile := s.callerProfile(w, r)
	if profile == nil {
		return
	}
	group := s.memberGroup(w, r, profile)
	if group == nil {
		return
	}

	messages, err := s.store.ListGroupMessages(r.Context(), group.ID)
	if err != nil {
		log.Error().Err(err).Msg("message query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	senderIDs := make([]string, 0, len(messages))
	seen := make(map[string]bool, len(messages))
	for _, message := range messages {
		if !seen[message.SenderUserID] {
			seen[message.SenderUserID] = true
			senderIDs = append(senderIDs, message.SenderUserID)
		}
	}

	names, err := s.store.ProfileNames(r.Context(), senderIDs)
	if err != nil {
		log.Error().Err(err).Msg("sender name query failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	mapped := make([]messageJSON, 0, len(messages))
	for _, message := range messages {
		mapped = append(mapped, mapMessage(message, names[message.SenderUserID]))
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"group":    mapGroup(*group),
		"messages": mapped,
	})
}

type postMessageRequest struct {
	Body string `json:"body"`
}

func (s *Server) handlePostMessage(w http.ResponseWriter, r *http.Request) {
	profile := s.callerProfile(w, r)
	if profile == nil {
		return
	}
	group := s.memberGroup(w, r, profile)
	if group == nil {
		return
	}

	var req postMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}
	body := strings.TrimSpace(req.Body)
	if body == "" {
		writeMessage(w, http.StatusBadRequest, "Missing fields.")
		return
	}

	message := model.Message{
		ID:           uuid.NewString(),
		GroupID:      group.ID,
		SchoolID:     profile.SchoolID,
		SenderUserID: profile.ID,
		Body:         body,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.store.CreateMessage(r.Context(), message); err != nil {
		log.Error().Err(err).Msg("message insert failure")
		writeMessage(w, http.StatusInternalServerError, "Unexpected error.")
		return
	}

	s.publishMessage(r, message, profile.Name)

	writeJSON(w, http.StatusCreated, mapMessage(message, profile.Name))
}

// publishMessage fans the stored message out on the group's realtime channel.
// Delivery is handled by the transport; skipped when redis is not configured.
func (s *Server) publishMessage(r *http.Request, message model.Message, senderName string) {
	if s.redis == nil {
		return
	}
	payload, err := json.Marshal(mapMessage(message, senderName))
	if err != nil {
		return
	}
	if err := s.redis.Publish(r.Context(), "messages:"+message.GroupID, payload).Err(); err != nil {
		log.Warn().Err(err).Str("group", message.GroupID).Msg("realtime publish failed")
	}
}
