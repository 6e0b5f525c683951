package server

import (
	"encoding/json"
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"
	"time"

	"appraiserai/internal/util"
	"appraiserai/pkg/ai"
	"appraiserai/pkg/domain"
	"appraiserai/pkg/export"
	"appraiserai/pkg/imaging"
	"appraiserai/services/appraiser/internal/app"
)

type appraisalRequest struct {
	Image       string `json:"image"`
	Title       string `json:"title"`
	Description string `json:"description"`
	TemplateID  string `json:"templateId"`
	Save        *bool  `json:"save"`
}

func (s *Server) handleAppraisals(w http.ResponseWriter, r *http.Request, user domain.User) {
	switch r.Method {
	case http.MethodPost:
		s.handleCreateAppraisal(w, r, user)
	case http.MethodGet:
		items, err := s.app.ListAppraisals(user, queryInt(r, "limit"))
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"items": items,
			"count": len(items),
		})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleCreateAppraisal(w http.ResponseWriter, r *http.Request, user domain.User) {
	if !s.allowRate(w, r, user) {
		return
	}
	in, err := s.readAppraisalInput(w, r)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return
		}
		writeAppError(w, r, err)
		return
	}
	started := time.Now()
	res, err := s.app.Appraise(r.Context(), user, in)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	logDuration(r, "appraisal request served", started, "saved", res.Saved)
	status := http.StatusOK
	if res.Saved {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

// readAppraisalInput accepts a multipart form with an "image" file or a JSON
// body whose "image" is a data URL or bare base64.
func (s *Server) readAppraisalInput(w http.ResponseWriter, r *http.Request) (app.AppraiseInput, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes+multipartMemory)
		if err := r.ParseMultipartForm(multipartMemory); err != nil {
			var tooLarge *http.MaxBytesError
			if errors.As(err, &tooLarge) {
				return app.AppraiseInput{}, err
			}
			return app.AppraiseInput{}, ai.InvalidInput("invalid form data")
		}
		in := app.AppraiseInput{
			Title:       r.FormValue("title"),
			Description: r.FormValue("description"),
			TemplateID:  r.FormValue("templateId"),
			Save:        parseSave(r.FormValue("save")),
		}
		file, _, err := r.FormFile("image")
		if err != nil {
			return in, ai.InvalidInput(app.ErrImageRequired.Error() + " (field: image)")
		}
		defer file.Close()
		data, err := io.ReadAll(io.LimitReader(file, s.maxUploadBytes+1))
		if err != nil {
			return in, ai.InvalidInput("read image: " + err.Error())
		}
		in.Image = data
		return in, nil
	}

	// base64 inflates the payload by a third
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*4/3+maxJSONBodyBytes)
	var req appraisalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return app.AppraiseInput{}, err
		}
		return app.AppraiseInput{}, ai.InvalidInput("invalid JSON body")
	}
	in := app.AppraiseInput{
		Title:       req.Title,
		Description: req.Description,
		TemplateID:  req.TemplateID,
		Save:        req.Save == nil || *req.Save,
	}
	if strings.TrimSpace(req.Image) == "" {
		return in, ai.InvalidInput(app.ErrImageRequired.Error())
	}
	data, err := imaging.DecodeBase64(req.Image)
	if err != nil {
		return in, ai.InvalidInput(err.Error())
	}
	in.Image = data
	return in, nil
}

func parseSave(v string) bool {
	v = strings.TrimSpace(v)
	if v == "" {
		return true
	}
	save, err := strconv.ParseBool(v)
	return err != nil || save
}

// /appraisals/stats, /appraisals/{id}, /appraisals/{id}/{export.txt|print|image}
func (s *Server) handleAppraisalByID(w http.ResponseWriter, r *http.Request, user domain.User) {
	parts := pathParts(r, "/appraisals/")
	if len(parts) == 0 || len(parts) > 2 {
		notFound(w, "not found")
		return
	}
	if len(parts) == 1 && parts[0] == "stats" {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		stats, err := s.app.AppraisalStats(user)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
		return
	}
	id := parts[0]
	if len(parts) == 2 {
		if r.Method != http.MethodGet {
			methodNotAllowed(w)
			return
		}
		switch parts[1] {
		case "export.txt":
			s.handleExportText(w, r, user, id)
		case "print":
			s.handlePrint(w, r, user, id)
		case "image":
			s.handleImage(w, r, user, id)
		default:
			notFound(w, "not found")
		}
		return
	}

	switch r.Method {
	case http.MethodGet:
		appraisal, err := s.app.GetAppraisal(user, id)
		if err != nil {
			writeAppError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, appraisal)
	case http.MethodDelete:
		if err := s.app.DeleteAppraisal(r.Context(), user, id); err != nil {
			writeAppError(w, r, err)
			return
		}
		util.LoggerFromContext(r.Context()).Info("appraisal deleted", "appraisal_id", id)
		writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
	default:
		methodNotAllowed(w)
	}
}

func (s *Server) handleExportText(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	appraisal, err := s.app.GetAppraisal(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	writeAttachment(w, "text/plain; charset=utf-8", export.TextFilename(appraisal), export.Text(appraisal))
}

func (s *Server) handlePrint(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	appraisal, err := s.app.GetAppraisal(user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	page, err := export.PrintHTML(appraisal)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	w.Header().Set("Content-Security-Policy", util.PrintContentSecurityPolicy)
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(page)
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request, user domain.User, id string) {
	loc, err := s.app.AppraisalImage(r.Context(), user, id)
	if err != nil {
		writeAppError(w, r, err)
		return
	}
	if loc.URL != "" {
		http.Redirect(w, r, loc.URL, http.StatusFound)
		return
	}
	defer loc.Body.Close()
	w.Header().Set("Content-Type", loc.ContentType)
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	_, _ = io.Copy(w, loc.Body)
}
