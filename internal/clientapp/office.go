package clientapp

import (
	"net/http"
	"strconv"

	"github.com/phillip-england/hrsuite/internal/apperr"
	"github.com/phillip-england/hrsuite/internal/hrapi"
)

func (s *server) officePage(w http.ResponseWriter, r *http.Request) {
	errMsg, msg := flash(r)
	data := pageData{Title: "Office Location", Error: errMsg, Message: msg}

	office, err := browserFrom(r).hr.Office(r.Context())
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		data.Error = apperr.UserMessage(err, "Failed to load office location")
	}
	if office != nil {
		data.Office = officeFormFrom(*office)
	}
	s.render(w, r, "office.html", data)
}

func officeFormFrom(o hrapi.OfficeLocation) officeForm {
	return officeForm{
		Latitude:  strconv.FormatFloat(o.Latitude, 'f', -1, 64),
		Longitude: strconv.FormatFloat(o.Longitude, 'f', -1, 64),
		Radius:    strconv.FormatFloat(o.RadiusMeters, 'f', -1, 64),
		Saved:     true,
	}
}

func (s *server) saveOffice(w http.ResponseWriter, r *http.Request) {
	form := officeForm{
		Latitude:  r.FormValue("latitude"),
		Longitude: r.FormValue("longitude"),
		Radius:    r.FormValue("radius"),
	}
	office, err := hrapi.ParseOffice(form.Latitude, form.Longitude, form.Radius)
	if err == nil {
		err = browserFrom(r).hr.SaveOffice(r.Context(), office)
	}
	if err != nil {
		if s.handleAPIError(w, r, err) {
			return
		}
		s.render(w, r, "office.html", pageData{
			Title:  "Office Location",
			Error:  apperr.UserMessage(err, "Failed to save office location"),
			Office: form,
		})
		return
	}
	redirectWith(w, r, "/office-location", "message", "Office location saved")
}
