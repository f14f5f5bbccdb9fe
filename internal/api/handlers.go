package api

import (
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/appointment"
	"github.com/hackgods/telehealth-booking/internal/status"
)

func createAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req CreateAppointmentRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		doctorID, err := uuid.Parse(req.DoctorID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		slotID, err := uuid.Parse(req.SlotID)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_slot_id", "slot_id must be a valid UUID")
			return
		}

		appt, err := svc.CreateForPatient(r.Context(), actor, appointment.CreateAppointmentInput{
			DoctorID: doctorID,
			SlotID:   slotID,
			Modality: appointment.Modality(req.Modality),
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusCreated, newAppointmentView(appt))
	}
}

func listAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var (
			f   appointment.ListFilter
			err error
		)
		if f.DoctorID, err = optionalUUID(r, "doctor_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_doctor_id", "doctor_id must be a valid UUID")
			return
		}
		if f.PatientID, err = optionalUUID(r, "patient_id"); err != nil {
			writeError(w, http.StatusBadRequest, "invalid_patient_id", "patient_id must be a valid UUID")
			return
		}
		if raw := r.URL.Query().Get("status"); raw != "" {
			code := status.Code(raw)
			f.Status = &code
		}
		if f.From, err = optionalTime(r, "from"); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if f.To, err = optionalTime(r, "to"); err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		list, err := svc.List(r.Context(), actor, f)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newDetailViews(list))
	}
}

// limitedListHandler serves the upcoming, past and cancelled views, which
// differ only in the service call.
func limitedListHandler(svc AppointmentService, log *zap.Logger, which string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		limit, err := intQuery(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}

		var list []appointment.AppointmentDetail
		switch which {
		case "upcoming":
			list, err = svc.GetUpcoming(r.Context(), actor, limit)
		case "past":
			list, err = svc.GetPast(r.Context(), actor, limit)
		default:
			list, err = svc.GetCancelled(r.Context(), actor, limit)
		}
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newDetailViews(list))
	}
}

func allAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		page, err := intQuery(r, "page")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_page", "page must be an integer")
			return
		}
		limit, err := intQuery(r, "limit")
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
			return
		}

		res, err := svc.GetAll(r.Context(), actor, page, limit, r.URL.Query().Get("order"))
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, PageView{
			Data: newDetailViews(res.Data),
			Pagination: PaginationView{
				Total:      res.Pagination.Total,
				Page:       res.Pagination.Page,
				Limit:      res.Pagination.Limit,
				TotalPages: res.Pagination.TotalPages,
			},
		})
	}
}

func rangeAppointmentsHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		from, err := optionalTime(r, "from")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		to, err := optionalTime(r, "to")
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		if from == nil || to == nil {
			writeError(w, http.StatusBadRequest, "invalid_range", "from and to are required")
			return
		}

		list, err := svc.GetByDateRange(r.Context(), actor, *from, *to)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newDetailViews(list))
	}
}

func getAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		detail, err := svc.GetOne(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newDetailView(detail))
	}
}

func updateStatusHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req UpdateStatusRequest
		if !decodeJSON(w, r, &req) {
			return
		}
		if req.Status == "" {
			writeError(w, http.StatusBadRequest, "invalid_status", "status is required")
			return
		}

		appt, err := svc.UpdateStatus(r.Context(), id, actor, appointment.UpdateStatusInput{
			Status:       status.Code(req.Status),
			CancelReason: req.CancelReason,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, newAppointmentView(appt))
	}
}

func cancelAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		// the body is optional
		var req CancelRequest
		if !decodeOptionalJSON(w, r, &req) {
			return
		}

		res, err := svc.CancelAppointment(r.Context(), id, actor, req.CancelReason)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		writeJSON(w, http.StatusOK, CancelResponse{
			Message: res.Message,
			Appointment: CancelledView{
				ID:           res.Appointment.ID,
				Status:       res.Appointment.Status,
				CancelReason: res.Appointment.CancelReason,
			},
		})
	}
}

func deleteAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.DeleteAppointment(r.Context(), id, actor); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func eraseAppointmentHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		if err := svc.EraseAppointment(r.Context(), id, actor); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func addNoteHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		var req CreateNoteRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		note, err := svc.AddNote(r.Context(), id, actor, req.Content)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, newNoteView(note))
	}
}

func listNotesHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}

		notes, err := svc.ListNotes(r.Context(), id, actor)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		out := make([]NoteView, 0, len(notes))
		for i := range notes {
			out = append(out, newNoteView(&notes[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deleteNoteHandler(svc AppointmentService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		id, ok := uuidParam(w, r, "id")
		if !ok {
			return
		}
		noteID, ok := uuidParam(w, r, "noteId")
		if !ok {
			return
		}

		if err := svc.DeleteNote(r.Context(), id, noteID, actor); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listStatusesHandler(catalog StatusCatalog, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		all, err := catalog.All(r.Context())
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusOK, all)
	}
}
