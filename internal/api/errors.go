package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/appointment"
	"github.com/hackgods/telehealth-booking/internal/auth"
	"github.com/hackgods/telehealth-booking/internal/availability"
	"github.com/hackgods/telehealth-booking/internal/status"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order, so wrapped errors that match more than
// one sentinel must come first.
var errorMappings = []errorMapping{
	{appointment.ErrPatientCanOnlyCancel, http.StatusForbidden, "patient_can_only_cancel"},
	{auth.ErrForbidden, http.StatusForbidden, "forbidden"},

	{availability.ErrInvalidTimestamp, http.StatusBadRequest, "invalid_timestamp"},
	{availability.ErrInvalidRange, http.StatusBadRequest, "invalid_range"},
	{appointment.ErrInvalidDateRange, http.StatusBadRequest, "invalid_range"},
	{appointment.ErrInvalidModality, http.StatusBadRequest, "invalid_modality"},
	{status.ErrUnknownStatus, http.StatusBadRequest, "unknown_status"},
	{appointment.ErrSlotDoctorMismatch, http.StatusBadRequest, "slot_doctor_mismatch"},
	{appointment.ErrInvalidStatusTransition, http.StatusBadRequest, "invalid_status_transition"},
	{appointment.ErrAlreadyCancelled, http.StatusBadRequest, "already_cancelled"},
	{appointment.ErrCannotCancelCompleted, http.StatusBadRequest, "cannot_cancel_completed"},
	{appointment.ErrCannotDeleteCompleted, http.StatusBadRequest, "cannot_delete_completed"},
	{appointment.ErrEmptyNote, http.StatusBadRequest, "empty_note"},

	{availability.ErrSlotNotFound, http.StatusNotFound, "slot_not_found"},
	{appointment.ErrAppointmentNotFound, http.StatusNotFound, "appointment_not_found"},
	{appointment.ErrNoteNotFound, http.StatusNotFound, "note_not_found"},

	{availability.ErrSlotOverlap, http.StatusConflict, "slot_overlap"},
	{availability.ErrSlotHasAppointments, http.StatusConflict, "slot_has_appointments"},
	{availability.ErrSlotBusy, http.StatusConflict, "slot_busy"},
	{appointment.ErrSlotAlreadyBooked, http.StatusConflict, "slot_already_booked"},
	{appointment.ErrPatientDoubleBooked, http.StatusConflict, "patient_double_booked"},
	{appointment.ErrSlotBeingBooked, http.StatusConflict, "slot_being_booked"},
}

// writeServiceError maps a service error to its HTTP status. Unknown errors
// are logged and hidden behind a generic 500.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *zap.Logger, err error) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			writeError(w, m.status, m.code, err.Error())
			return
		}
	}

	log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.String("request_id", GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal_error", "an unexpected error occurred")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, details string) {
	writeJSON(w, status, ErrorResponse{Error: code, Details: details})
}
