package gateway

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Outcome is the normalised result of a gateway call.
type Outcome struct {
	Success   bool
	Reference string
	Message   string
}

var (
	referenceFields = []string{"reference", "reference_id", "txn_id", "transaction_id", "ref_id", "utr", "operator_ref"}
	messageFields   = []string{"message", "msg", "status_message", "error", "description"}
)

// Interpret maps the gateway's success conventions onto one Outcome. A reply
// counts as successful when the HTTP status is 2xx and the body carries
// status 0, status "success" or success true.
func Interpret(resp *Response) Outcome {
	if resp == nil {
		return Outcome{Message: "no response from gateway"}
	}

	var body map[string]any
	if err := json.Unmarshal(resp.Data, &body); err != nil {
		return Outcome{Message: "unrecognised gateway response"}
	}
	if data, ok := body["data"].(map[string]any); ok {
		for k, v := range data {
			if _, exists := body[k]; !exists {
				body[k] = v
			}
		}
	}

	out := Outcome{
		Reference: firstString(body, referenceFields),
		Message:   firstString(body, messageFields),
	}
	out.Success = resp.StatusCode >= 200 && resp.StatusCode < 300 && successMarker(body)
	if out.Message == "" {
		if out.Success {
			out.Message = "transaction successful"
		} else {
			out.Message = "transaction failed at gateway"
		}
	}
	return out
}

func successMarker(body map[string]any) bool {
	if v, ok := body["success"].(bool); ok {
		return v
	}
	switch status := body["status"].(type) {
	case float64:
		return status == 0
	case string:
		s := strings.TrimSpace(status)
		return strings.EqualFold(s, "success") || s == "0"
	case bool:
		return status
	}
	return false
}

func firstString(body map[string]any, keys []string) string {
	for _, k := range keys {
		switch v := body[k].(type) {
		case string:
			if v != "" {
				return v
			}
		case float64:
			return strconv.FormatFloat(v, 'f', -1, 64)
		}
	}
	return ""
}
