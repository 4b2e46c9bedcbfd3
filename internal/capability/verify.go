package capability

import (
	"fmt"

	"govee-bridge/internal/domain"
)

const (
	routerSuccess = "success"
	legacySuccess = "Success"
)

// VerifyRouter checks that the vendor applied the requested capability.
// HTTP 200 alone is not an acknowledgement.
func VerifyRouter(requested RouterCapability, resp *ControlResponse) error {
	reject := func(reason string) error {
		return &domain.CommandRejectedError{
			Instance:  requested.Instance,
			Requested: requested.Value,
			Echoed:    string(resp.Capability.Value),
			Reason:    reason,
		}
	}

	if resp.Msg != routerSuccess {
		return reject(fmt.Sprintf("msg %q", resp.Msg))
	}
	if resp.Code != 200 {
		return reject(fmt.Sprintf("code %d", resp.Code))
	}
	if resp.Capability.State.Status != routerSuccess {
		return reject(fmt.Sprintf("state status %q", resp.Capability.State.Status))
	}
	echoed, ok := intValue(resp.Capability.Value)
	if !ok || echoed != requested.Value {
		return reject("echoed value differs")
	}
	return nil
}

// VerifyLegacy checks an appliance API response.
func VerifyLegacy(requested LegacyCommand, resp *LegacyResponse) error {
	code, hasCode := resp.ResultCode()
	if resp.Message == legacySuccess && hasCode && code == 200 {
		return nil
	}
	return &domain.CommandRejectedError{
		Instance:  requested.Name,
		Requested: requested.Value,
		Echoed:    fmt.Sprintf("%d", code),
		Reason:    fmt.Sprintf("message %q (http %d)", resp.Message, resp.HTTPStatus),
	}
}
