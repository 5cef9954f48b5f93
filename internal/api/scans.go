package api

import (
	"io"
	"mime/multipart"
	"net/http"

	"github.com/rotisserie/eris"

	"github.com/xMathyu/hvac-scanner/internal/scanner"
)

// imageFields are the multipart field names that carry photos.
var imageFields = []string{"image", "images"}

// readImages parses the multipart photos of r in upload order.
func (s *Server) readImages(w http.ResponseWriter, r *http.Request) ([]scanner.Image, error) {
	r.Body = http.MaxBytesReader(w, r.Body, s.opts.Server.MaxUploadBytes)
	if err := r.ParseMultipartForm(s.opts.Server.MaxUploadBytes); err != nil {
		return nil, eris.Wrap(scanner.ErrInvalidImage, "multipart form: "+err.Error())
	}

	var images []scanner.Image
	for _, field := range imageFields {
		for _, fh := range r.MultipartForm.File[field] {
			img, err := s.readPart(fh)
			if err != nil {
				return nil, err
			}
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		return nil, eris.Wrap(scanner.ErrInvalidImage, "no image parts in request")
	}
	return images, nil
}

func (s *Server) readPart(fh *multipart.FileHeader) (scanner.Image, error) {
	f, err := fh.Open()
	if err != nil {
		return scanner.Image{}, eris.Wrapf(err, "api: open part %s", fh.Filename)
	}
	defer f.Close() //nolint:errcheck

	data, err := io.ReadAll(f)
	if err != nil {
		return scanner.Image{}, eris.Wrapf(err, "api: read part %s", fh.Filename)
	}
	return scanner.NewImage(fh.Filename, data, s.opts.MaxImageBytes)
}

func (s *Server) handleScanLabel(w http.ResponseWriter, r *http.Request) {
	images, err := s.readImages(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	q := r.URL.Query()
	res, err := s.scanner.ScanLabel(r.Context(), images, scanner.ScanOptions{
		Persist:  queryBool(r, "persist"),
		Location: q.Get("location"),
		Notes:    q.Get("notes"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Persisted && !res.Duplicate {
		status = http.StatusCreated
	}
	writeJSON(w, status, res)
}

func (s *Server) handleAnalyzeEquipment(w http.ResponseWriter, r *http.Request) {
	images, err := s.readImages(w, r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	analysis, err := s.scanner.AnalyzeEquipment(r.Context(), images)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, analysis)
}
