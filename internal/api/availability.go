package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/hackgods/telehealth-booking/internal/availability"
)

func createSlotHandler(svc AvailabilityService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}

		var req CreateSlotRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		slot, err := svc.CreateSlot(r.Context(), actor, availability.CreateSlotInput{
			StartAt: req.StartAt,
			EndAt:   req.EndAt,
			RRule:   req.RRule,
		})
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		writeJSON(w, http.StatusCreated, newSlotView(slot))
	}
}

func listSlotsHandler(svc AvailabilityService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		doctorID, ok := uuidParam(w, r, "id")
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

		slots, err := svc.ListSlots(r.Context(), doctorID, from, to)
		if err != nil {
			writeServiceError(w, r, log, err)
			return
		}

		out := make([]SlotView, 0, len(slots))
		for i := range slots {
			out = append(out, newSlotView(&slots[i]))
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func deleteSlotHandler(svc AvailabilityService, log *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		actor, ok := actorFrom(w, r)
		if !ok {
			return
		}
		slotID, ok := uuidParam(w, r, "slotId")
		if !ok {
			return
		}

		if err := svc.DeleteSlot(r.Context(), actor, slotID); err != nil {
			writeServiceError(w, r, log, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
