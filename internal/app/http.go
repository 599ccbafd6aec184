package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"docuport/api/internal/guest"
	"docuport/api/internal/staffauth"
	"docuport/api/internal/store"
	"docuport/api/internal/vault"
)

const (
	guestCookieName   = "docuport_guest_session"
	maxUploadBytes    = 64 << 20
	multipartMemLimit = 32 << 20
)

type HTTPServer struct {
	service *Service
}

func NewHTTPServer(service *Service) *HTTPServer {
	return &HTTPServer{service: service}
}

func (s *HTTPServer) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

func (s *HTTPServer) handle(w http.ResponseWriter, r *http.Request) {
	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/health" {
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return
	}

	if (r.Method == http.MethodGet || r.Method == http.MethodHead) && r.URL.Path == "/api/ready" {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		if err := s.service.Ping(ctx); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]any{"ok": false, "status": "not_ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true, "status": "ready"})
		return
	}

	if strings.HasPrefix(r.URL.Path, "/api/guest/") {
		s.handleGuest(w, r)
		return
	}

	s.handleStaff(w, r)
}

// --- guest surface ---

func (s *HTTPServer) handleGuest(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/guest/login":
		s.handleGuestLogin(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/guest/logout":
		s.handleGuestLogout(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/guest/session":
		s.handleGuestSession(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/guest/documents":
		s.withGuest(w, r, s.handleGuestDocuments)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/guest/documents/", "/responses"):
		s.withGuest(w, r, s.handleGuestUploadResponse)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/guest/files/"):
		s.withGuest(w, r, s.handleGuestFile)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleGuestLogin(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email string `json:"email"`
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}

	raw, client, err := s.service.GuestLogin(r.Context(), body.Email, body.Token)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	http.SetCookie(w, s.guestCookie(raw, int(guest.SessionTTL.Seconds())))
	writeJSON(w, http.StatusOK, map[string]any{
		"clientId":    client.ID,
		"companyName": client.CompanyName,
	})
}

func (s *HTTPServer) handleGuestLogout(w http.ResponseWriter, r *http.Request) {
	if raw := guestCookieValue(r); raw != "" {
		if err := s.service.GuestLogout(r.Context(), raw); err != nil {
			writeDomainError(w, err)
			return
		}
	}
	http.SetCookie(w, s.guestCookie("", -1))
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *HTTPServer) handleGuestSession(w http.ResponseWriter, r *http.Request) {
	client, err := s.service.GuestVerify(r.Context(), guestCookieValue(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if client == nil {
		writeJSON(w, http.StatusOK, map[string]any{"authenticated": false})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"clientId":      client.ID,
		"companyName":   client.CompanyName,
	})
}

// withGuest resolves the session cookie and rejects unauthenticated calls.
func (s *HTTPServer) withGuest(w http.ResponseWriter, r *http.Request, next func(http.ResponseWriter, *http.Request, *store.Client)) {
	client, err := s.service.GuestVerify(r.Context(), guestCookieValue(r))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	if client == nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Guest login required", nil)
		return
	}
	next(w, r, client)
}

func (s *HTTPServer) handleGuestDocuments(w http.ResponseWriter, r *http.Request, client *store.Client) {
	views, err := s.service.ListDocumentsForClient(r.Context(), client.ID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documentPayloads(views)})
}

func (s *HTTPServer) handleGuestUploadResponse(w http.ResponseWriter, r *http.Request, client *store.Client) {
	documentID := pathSegment(r.URL.Path, "/api/guest/documents/", "/responses")
	name, data, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
		return
	}
	file, err := s.service.AttachResponseForGuest(r.Context(), client, documentID, name, data)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, filePayload(file))
}

func (s *HTTPServer) handleGuestFile(w http.ResponseWriter, r *http.Request, client *store.Client) {
	fileID := strings.TrimPrefix(r.URL.Path, "/api/guest/files/")
	file, data, err := s.service.FetchFileForGuest(r.Context(), client, fileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	serveFile(w, r, file, data)
}

// --- staff surface ---

func (s *HTTPServer) handleStaff(w http.ResponseWriter, r *http.Request) {
	claims, err := staffauth.ParseToken([]byte(s.service.cfg.StaffJWTSecret), bearerToken(r))
	if err != nil {
		writeError(w, http.StatusUnauthorized, "UNAUTHENTICATED", "Staff token required", nil)
		return
	}
	userID := claims.Subject

	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/api/clients":
		s.handleCreateClient(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/clients":
		s.handleListClients(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/teams":
		s.handleCreateTeam(w, r, userID)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/teams/", "/invitations"):
		s.handleInvite(w, r)
	case r.Method == http.MethodGet && r.URL.Path == "/api/invitations/validate":
		s.handleValidateInvitation(w, r)
	case r.Method == http.MethodPost && r.URL.Path == "/api/invitations/accept":
		s.handleAcceptInvitation(w, r, userID)
	case r.Method == http.MethodPost && r.URL.Path == "/api/documents":
		s.handleCreateDocument(w, r, userID)
	case r.Method == http.MethodGet && r.URL.Path == "/api/documents":
		s.handleListDocuments(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/documents/") && strings.HasSuffix(r.URL.Path, "/files"):
		s.handleListFiles(w, r)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/documents/", "/reschedule"):
		s.handleReschedule(w, r)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/documents/", "/track"):
		s.handleDocumentAction(w, r, "/track", s.service.StartTracking)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/documents/", "/complete"):
		s.handleDocumentAction(w, r, "/complete", s.service.CompleteDocument)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/documents/", "/approve"):
		s.handleDocumentAction(w, r, "/approve", s.service.ApproveDocument)
	case r.Method == http.MethodPost && matchPath(r.URL.Path, "/api/documents/", "/files"):
		s.handleUploadFile(w, r, userID)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/documents/"):
		s.handleGetDocument(w, r)
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/api/files/"):
		s.handleGetFile(w, r)
	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

func (s *HTTPServer) handleCreateClient(w http.ResponseWriter, r *http.Request) {
	var body struct {
		CompanyName string `json:"companyName"`
		Email       string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	client, err := s.service.CreateClient(r.Context(), body.CompanyName, body.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	// The login token is shown exactly once, at creation time.
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":          client.ID,
		"companyName": client.CompanyName,
		"email":       client.Email,
		"loginToken":  client.LoginToken,
	})
}

func (s *HTTPServer) handleListClients(w http.ResponseWriter, r *http.Request) {
	clients, err := s.service.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(clients))
	for _, c := range clients {
		payload = append(payload, map[string]any{
			"id":          c.ID,
			"companyName": c.CompanyName,
			"email":       c.Email,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"clients": payload})
}

func (s *HTTPServer) handleCreateTeam(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Name string `json:"name"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	team, err := s.service.CreateTeam(r.Context(), body.Name, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": team.ID, "name": team.Name})
}

func (s *HTTPServer) handleInvite(w http.ResponseWriter, r *http.Request) {
	teamID := pathSegment(r.URL.Path, "/api/teams/", "/invitations")
	var body struct {
		Email string `json:"email"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	inv, err := s.service.InviteToTeam(r.Context(), teamID, body.Email)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"id":        inv.ID,
		"email":     inv.Email,
		"expiresAt": inv.ExpiresAt,
	})
}

func (s *HTTPServer) handleValidateInvitation(w http.ResponseWriter, r *http.Request) {
	inv, err := s.service.ValidateInvitation(r.Context(), r.URL.Query().Get("token"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"teamId":    inv.TeamID,
		"email":     inv.Email,
		"expiresAt": inv.ExpiresAt,
	})
}

func (s *HTTPServer) handleAcceptInvitation(w http.ResponseWriter, r *http.Request, userID string) {
	var body struct {
		Token string `json:"token"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	inv, err := s.service.AcceptInvitation(r.Context(), body.Token, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"teamId": inv.TeamID})
}

func (s *HTTPServer) handleCreateDocument(w http.ResponseWriter, r *http.Request, userID string) {
	var input CreateDocumentInput
	if err := decodeBody(r, &input); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.CreateDocument(r.Context(), input, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, documentPayload(view))
}

func (s *HTTPServer) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	views, err := s.service.ListDocuments(r.Context())
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"documents": documentPayloads(views)})
}

func (s *HTTPServer) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	documentID := strings.TrimPrefix(r.URL.Path, "/api/documents/")
	view, err := s.service.GetDocument(r.Context(), documentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentPayload(view))
}

func (s *HTTPServer) handleReschedule(w http.ResponseWriter, r *http.Request) {
	documentID := pathSegment(r.URL.Path, "/api/documents/", "/reschedule")
	var body struct {
		StartTrackAt time.Time `json:"startTrackAt"`
		EndTrackAt   time.Time `json:"endTrackAt"`
	}
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
		return
	}
	view, err := s.service.RescheduleDocument(r.Context(), documentID, body.StartTrackAt, body.EndTrackAt)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentPayload(view))
}

func (s *HTTPServer) handleDocumentAction(w http.ResponseWriter, r *http.Request, suffix string, action func(context.Context, string) (DocumentView, error)) {
	documentID := pathSegment(r.URL.Path, "/api/documents/", suffix)
	view, err := action(r.Context(), documentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, documentPayload(view))
}

func (s *HTTPServer) handleUploadFile(w http.ResponseWriter, r *http.Request, userID string) {
	documentID := pathSegment(r.URL.Path, "/api/documents/", "/files")
	name, data, err := readUpload(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_UPLOAD", err.Error(), nil)
		return
	}
	file, err := s.service.AttachFile(r.Context(), documentID, store.FileKindOriginal, name, data, userID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, filePayload(file))
}

func (s *HTTPServer) handleListFiles(w http.ResponseWriter, r *http.Request) {
	documentID := pathSegment(r.URL.Path, "/api/documents/", "/files")
	files, err := s.service.ListFiles(r.Context(), documentID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	payload := make([]map[string]any, 0, len(files))
	for _, f := range files {
		payload = append(payload, filePayload(f))
	}
	writeJSON(w, http.StatusOK, map[string]any{"files": payload})
}

func (s *HTTPServer) handleGetFile(w http.ResponseWriter, r *http.Request) {
	fileID := strings.TrimPrefix(r.URL.Path, "/api/files/")
	file, data, err := s.service.FetchFile(r.Context(), fileID)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	serveFile(w, r, file, data)
}

// --- helpers ---

func (s *HTTPServer) guestCookie(value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     guestCookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   s.service.cfg.IsProduction(),
		SameSite: http.SameSiteLaxMode,
	}
}

func guestCookieValue(r *http.Request) string {
	cookie, err := r.Cookie(guestCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}

func serveFile(w http.ResponseWriter, r *http.Request, file store.DocumentFile, data []byte) {
	disposition := "inline"
	if r.URL.Query().Get("download") == "1" {
		disposition = "attachment"
	}
	w.Header().Set("Content-Type", vault.ResolveContentType(file.Name))
	w.Header().Set("Content-Disposition", fmt.Sprintf("%s; filename*=UTF-8''%s", disposition, url.PathEscape(file.Name)))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func readUpload(r *http.Request) (string, []byte, error) {
	r.Body = http.MaxBytesReader(nil, r.Body, maxUploadBytes)
	if err := r.ParseMultipartForm(multipartMemLimit); err != nil {
		return "", nil, fmt.Errorf("invalid multipart body")
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return "", nil, fmt.Errorf("missing file field")
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		return "", nil, fmt.Errorf("read upload")
	}
	return header.Filename, data, nil
}

func documentPayload(view DocumentView) map[string]any {
	d := view.Document
	return map[string]any{
		"id":              d.ID,
		"title":           d.Title,
		"storedStatus":    d.StoredStatus,
		"effectiveStatus": string(view.EffectiveStatus),
		"startTrackAt":    d.StartTrackAt,
		"endTrackAt":      d.EndTrackAt,
		"completedAt":     d.CompletedAt,
		"approvedAt":      d.ApprovedAt,
		"clientId":        d.ClientID,
		"teamId":          d.TeamID,
	}
}

func documentPayloads(views []DocumentView) []map[string]any {
	payload := make([]map[string]any, 0, len(views))
	for _, v := range views {
		payload = append(payload, documentPayload(v))
	}
	return payload
}

func filePayload(f store.DocumentFile) map[string]any {
	return map[string]any{
		"id":         f.ID,
		"documentId": f.DocumentID,
		"kind":       f.Kind,
		"name":       f.Name,
		"size":       f.Size,
		"encrypted":  f.Encrypted,
	}
}

func matchPath(path, prefix, suffix string) bool {
	if !strings.HasPrefix(path, prefix) || !strings.HasSuffix(path, suffix) {
		return false
	}
	middle := strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
	return middle != "" && !strings.Contains(middle, "/")
}

func pathSegment(path, prefix, suffix string) string {
	return strings.TrimSuffix(strings.TrimPrefix(path, prefix), suffix)
}

func writeDomainError(w http.ResponseWriter, err error) {
	de := toDomainError(err)
	if de.Status >= http.StatusInternalServerError {
		log.Printf("internal error: %v", err)
	}
	writeError(w, de.Status, de.Code, de.Message, de.Details)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string, details any) {
	response := map[string]any{
		"code":  code,
		"error": message,
	}
	if details != nil {
		response["details"] = details
	}
	writeJSON(w, status, response)
}

func decodeBody(r *http.Request, target any) error {
	if r.Body == nil {
		return nil
	}
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	return nil
}

func bearerToken(r *http.Request) string {
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}
