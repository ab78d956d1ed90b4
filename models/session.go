package models

import "fmt"

type Phase string

const (
	PhaseIdle               Phase = "idle"
	PhaseCapturingViaCamera Phase = "capturing_via_camera"
	PhaseReadyToSubmit      Phase = "ready_to_submit"
	PhaseSubmitting         Phase = "submitting"
	PhaseResultReady        Phase = "result_ready"
	PhaseFailed             Phase = "failed"
)

// TryOnSession is a copy of the controller state for one try-on attempt.
type TryOnSession struct {
	ID              string         `json:"id"`
	Generation      uint64         `json:"generation"`
	Phase           Phase          `json:"phase"`
	CapturedImage   *CapturedImage `json:"captured_image,omitempty"`
	SelectedProduct *Product       `json:"selected_product,omitempty"`
	LastError       *Error         `json:"last_error,omitempty"`
	Result          *TryOnResult   `json:"result,omitempty"`
}

func (s TryOnSession) HasInputs() bool {
	return s.CapturedImage != nil && s.SelectedProduct != nil
}

// PhaseFor computes the phase an input change settles into.
func PhaseFor(hasImage, hasProduct bool) Phase {
	if hasImage && hasProduct {
		return PhaseReadyToSubmit
	}
	return PhaseIdle
}

// CheckInvariants verifies the ready/result invariants of a session copy.
func (s TryOnSession) CheckInvariants() error {
	if s.Phase == PhaseIdle && s.HasInputs() {
		return fmt.Errorf("phase idle although image and product are selected")
	}
	if s.Phase == PhaseReadyToSubmit && !s.HasInputs() {
		return fmt.Errorf("phase ready_to_submit without both inputs")
	}
	if s.Result != nil && s.Phase != PhaseResultReady {
		return fmt.Errorf("result present in phase %s", s.Phase)
	}
	if s.Phase == PhaseResultReady && s.Result == nil {
		return fmt.Errorf("phase result_ready without result")
	}
	return nil
}
