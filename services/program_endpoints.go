package services

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/trainhub/tms/apperr"
	"github.com/trainhub/tms/models"
)

const maxUploadBytes = 10 << 20 // 10MB per request

type ProgramEndpoints struct {
	programs    *ProgramService
	enrollments *EnrollmentService
}

func NewProgramEndpoints(programs *ProgramService, enrollments *EnrollmentService) *ProgramEndpoints {
	return &ProgramEndpoints{programs: programs, enrollments: enrollments}
}

func (e *ProgramEndpoints) RegisterRoutes(r chi.Router) {
	r.Route("/programs", func(r chi.Router) {
		r.Get("/", e.ListHandler)
		r.Post("/", e.CreateHandler)
		r.Delete("/", e.DeleteAllHandler)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", e.GetHandler)
			r.Patch("/", e.UpdateHandler)
			r.Delete("/", e.DeleteHandler)
			r.Post("/approve", e.ApproveHandler)
			r.Post("/reject", e.RejectHandler)
			r.Post("/enroll", e.EnrollHandler)
			r.Get("/enrollments", e.ListEnrollmentsHandler)
			r.Post("/enrollments/{traineeId}/review", e.ReviewHandler)
		})
	})
	r.Get("/enrollments/mine", e.MyEnrollmentsHandler)
}

type createProgramRequest struct {
	Title        string  `json:"title"`
	Description  string  `json:"description"`
	StartDate    string  `json:"start_date"`
	EndDate      string  `json:"end_date"`
	Seats        int     `json:"seats"`
	CompanyID    string  `json:"company_id"`
	CategoryID   string  `json:"category_id"`
	SupervisorID *string `json:"supervisor_id"`
}

func (e *ProgramEndpoints) CreateHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}

	input := CreateProgramInput{}
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, apperr.New(apperr.CodeValidation, "invalid multipart form", err))
			return
		}
		var req createProgramRequest
		req.Title = r.FormValue("title")
		req.Description = r.FormValue("description")
		req.StartDate = r.FormValue("start_date")
		req.EndDate = r.FormValue("end_date")
		req.Seats, _ = strconv.Atoi(r.FormValue("seats"))
		req.CompanyID = r.FormValue("company_id")
		req.CategoryID = r.FormValue("category_id")
		if v := r.FormValue("supervisor_id"); v != "" {
			req.SupervisorID = &v
		}
		parsed, err := buildCreateInput(req)
		if err != nil {
			writeError(w, err)
			return
		}
		input = parsed
		if upload, err := formUpload(r, "image"); err != nil {
			writeError(w, err)
			return
		} else if upload != nil {
			defer upload.close()
			input.Image = &upload.Upload
		}
	} else {
		var req createProgramRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
			return
		}
		parsed, err := buildCreateInput(req)
		if err != nil {
			writeError(w, err)
			return
		}
		input = parsed
	}

	program, err := e.programs.Create(r.Context(), actor, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"program": program})
}

// updateProgramRequest distinguishes absent fields from present ones.
// supervisor_id is raw JSON so an explicit null (detach the supervisor)
// is distinguishable from the field being absent (leave it alone).
type updateProgramRequest struct {
	Title        *string         `json:"title"`
	Description  *string         `json:"description"`
	StartDate    *string         `json:"start_date"`
	EndDate      *string         `json:"end_date"`
	Seats        *int            `json:"seats"`
	CategoryID   *string         `json:"category_id"`
	SupervisorID json.RawMessage `json:"supervisor_id"`
}

func (e *ProgramEndpoints) UpdateHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	programID := chi.URLParam(r, "id")

	input := UpdateProgramInput{}
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, apperr.New(apperr.CodeValidation, "invalid multipart form", err))
			return
		}
		var req updateProgramRequest
		form := r.MultipartForm.Value
		req.Title = formField(form, "title")
		req.Description = formField(form, "description")
		req.StartDate = formField(form, "start_date")
		req.EndDate = formField(form, "end_date")
		if raw := formField(form, "seats"); raw != nil {
			seats, err := strconv.Atoi(*raw)
			if err != nil {
				writeError(w, apperr.New(apperr.CodeValidation, "invalid seats value", err))
				return
			}
			req.Seats = &seats
		}
		req.CategoryID = formField(form, "category_id")
		// An empty supervisor_id form value detaches the supervisor,
		// mirroring an explicit JSON null.
		if raw := formField(form, "supervisor_id"); raw != nil {
			if *raw == "" {
				req.SupervisorID = json.RawMessage("null")
			} else {
				quoted, err := json.Marshal(*raw)
				if err != nil {
					writeError(w, apperr.New(apperr.CodeValidation, "invalid supervisor_id", err))
					return
				}
				req.SupervisorID = quoted
			}
		}
		parsed, err := buildUpdateInput(req)
		if err != nil {
			writeError(w, err)
			return
		}
		input = parsed
		if upload, err := formUpload(r, "image"); err != nil {
			writeError(w, err)
			return
		} else if upload != nil {
			defer upload.close()
			input.Image = &upload.Upload
		}
	} else {
		var req updateProgramRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
			return
		}
		parsed, err := buildUpdateInput(req)
		if err != nil {
			writeError(w, err)
			return
		}
		input = parsed
	}

	program, err := e.programs.Update(r.Context(), actor, programID, input)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"program": program})
}

func (e *ProgramEndpoints) GetHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	program, err := e.programs.Get(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"program": program})
}

func (e *ProgramEndpoints) ListHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}

	var state models.ApprovalStatus
	switch r.URL.Query().Get("state") {
	case "", "all":
	case "pending":
		state = models.ApprovalPending
	case "approved":
		state = models.ApprovalApproved
	case "rejected":
		state = models.ApprovalRejected
	default:
		writeError(w, apperr.New(apperr.CodeValidation, "state must be pending, approved or rejected", nil))
		return
	}
	ownScope := r.URL.Query().Get("scope") == "self"
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))

	result, err := e.programs.List(r.Context(), actor, state, ownScope, page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ProgramEndpoints) ApproveHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	program, err := e.programs.Approve(r.Context(), actor, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"program": program})
}

func (e *ProgramEndpoints) RejectHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	var req struct {
		Reason string `json:"reason"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	program, err := e.programs.Reject(r.Context(), actor, chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"program": program})
}

func (e *ProgramEndpoints) DeleteHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	if err := e.programs.Delete(r.Context(), actor, chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "program deleted"})
}

func (e *ProgramEndpoints) DeleteAllHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	deleted, err := e.programs.DeleteAll(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"deleted": deleted})
}

func (e *ProgramEndpoints) EnrollHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	var cv *Upload
	if isMultipart(r) {
		if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
			writeError(w, apperr.New(apperr.CodeValidation, "invalid multipart form", err))
			return
		}
		upload, err := formUpload(r, "cv")
		if err != nil {
			writeError(w, err)
			return
		}
		if upload != nil {
			defer upload.close()
			cv = &upload.Upload
		}
	}
	enrollment, err := e.enrollments.Enroll(r.Context(), actor, chi.URLParam(r, "id"), cv)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"enrollment": enrollment})
}

func (e *ProgramEndpoints) ReviewHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	var req struct {
		Accept bool `json:"accept"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.New(apperr.CodeValidation, "invalid request body", err))
		return
	}
	enrollment, err := e.enrollments.Review(r.Context(), actor,
		chi.URLParam(r, "id"), chi.URLParam(r, "traineeId"), req.Accept)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollment": enrollment})
}

func (e *ProgramEndpoints) ListEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	pageSize, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	result, err := e.enrollments.ListForProgram(r.Context(), actor, chi.URLParam(r, "id"), page, pageSize)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (e *ProgramEndpoints) MyEnrollmentsHandler(w http.ResponseWriter, r *http.Request) {
	actor, ok := ActorFrom(r.Context())
	if !ok {
		writeError(w, apperr.New(apperr.CodeUnauthorized, "authentication required", nil))
		return
	}
	enrollments, err := e.enrollments.ListMine(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"enrollments": enrollments, "count": len(enrollments)})
}

// Request helpers

func buildCreateInput(req createProgramRequest) (CreateProgramInput, error) {
	start, err := parseDate(req.StartDate)
	if err != nil {
		return CreateProgramInput{}, apperr.New(apperr.CodeValidation, "invalid start_date", err)
	}
	end, err := parseDate(req.EndDate)
	if err != nil {
		return CreateProgramInput{}, apperr.New(apperr.CodeValidation, "invalid end_date", err)
	}
	return CreateProgramInput{
		Title:        req.Title,
		Description:  req.Description,
		StartDate:    start,
		EndDate:      end,
		Seats:        req.Seats,
		CompanyID:    req.CompanyID,
		CategoryID:   req.CategoryID,
		SupervisorID: req.SupervisorID,
	}, nil
}

func buildUpdateInput(req updateProgramRequest) (UpdateProgramInput, error) {
	input := UpdateProgramInput{
		Title:       req.Title,
		Description: req.Description,
		Seats:       req.Seats,
		CategoryID:  req.CategoryID,
	}
	switch {
	case len(req.SupervisorID) == 0:
		// Field absent, assignment untouched.
	case string(req.SupervisorID) == "null":
		input.ClearSupervisor = true
	default:
		var id string
		if err := json.Unmarshal(req.SupervisorID, &id); err != nil {
			return UpdateProgramInput{}, apperr.New(apperr.CodeValidation, "invalid supervisor_id", err)
		}
		input.SupervisorID = &id
	}
	if req.StartDate != nil {
		start, err := parseDate(*req.StartDate)
		if err != nil {
			return UpdateProgramInput{}, apperr.New(apperr.CodeValidation, "invalid start_date", err)
		}
		input.StartDate = &start
	}
	if req.EndDate != nil {
		end, err := parseDate(*req.EndDate)
		if err != nil {
			return UpdateProgramInput{}, apperr.New(apperr.CodeValidation, "invalid end_date", err)
		}
		input.EndDate = &end
	}
	return input, nil
}

func parseDate(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", value)
}

func isMultipart(r *http.Request) bool {
	return strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data")
}

func formField(form map[string][]string, key string) *string {
	values, ok := form[key]
	if !ok || len(values) == 0 {
		return nil
	}
	return &values[0]
}

type requestUpload struct {
	Upload
	file multipart.File
}

func (u *requestUpload) close() {
	u.file.Close()
}

func formUpload(r *http.Request, field string) (*requestUpload, error) {
	file, header, err := r.FormFile(field)
	if err == http.ErrMissingFile {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.New(apperr.CodeValidation, "invalid file upload", err)
	}
	return &requestUpload{
		Upload: Upload{Content: file, Filename: header.Filename},
		file:   file,
	}, nil
}
