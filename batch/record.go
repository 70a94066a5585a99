package batch

import (
	"strconv"
	"strings"

	"github.com/studiocloud/mailverify/types"
)

// Output columns appended to every record, in this order.
const (
	ColumnResult  = "validation_result"
	ColumnReason  = "validation_reason"
	ColumnMX      = "mx_check"
	ColumnDNS     = "dns_check"
	ColumnSPF     = "spf_check"
	ColumnMailbox = "mailbox_check"
	ColumnSMTP    = "smtp_check"
)

// Columns lists the output columns in order.
var Columns = []string{ColumnResult, ColumnReason, ColumnMX, ColumnDNS, ColumnSPF, ColumnMailbox, ColumnSMTP}

// emailKeys are tried, in order, before a case-insensitive scan.
var emailKeys = []string{"email", "Email", "EMAIL"}

// Record is one input row and its verdict.
type Record struct {
	Index  int               `json:"index"`
	Fields map[string]string `json:"fields"`
	Result types.CheckResult `json:"result"`
}

// Values returns the row's values for headers followed by the output
// columns. Missing fields are empty.
func (r Record) Values(headers []string) []string {
	out := make([]string, 0, len(headers)+len(Columns))
	for _, h := range headers {
		out = append(out, r.Fields[h])
	}
	return append(out,
		verdict(r.Result.Valid),
		r.Result.Reason,
		strconv.FormatBool(r.Result.Checks.MX),
		strconv.FormatBool(r.Result.Checks.DNS),
		strconv.FormatBool(r.Result.Checks.SPF),
		strconv.FormatBool(r.Result.Checks.Mailbox),
		strconv.FormatBool(r.Result.Checks.SMTP),
	)
}

// Map returns the original fields merged with the output columns. Check
// columns are booleans so the map encodes to JSON the way a single
// validation does.
func (r Record) Map() map[string]any {
	out := make(map[string]any, len(r.Fields)+len(Columns))
	for k, v := range r.Fields {
		out[k] = v
	}
	out[ColumnResult] = verdict(r.Result.Valid)
	out[ColumnReason] = r.Result.Reason
	out[ColumnMX] = r.Result.Checks.MX
	out[ColumnDNS] = r.Result.Checks.DNS
	out[ColumnSPF] = r.Result.Checks.SPF
	out[ColumnMailbox] = r.Result.Checks.Mailbox
	out[ColumnSMTP] = r.Result.Checks.SMTP
	return out
}

// EmailField returns the address in row: the first of email, Email, EMAIL,
// then any key equal to "email" ignoring case. It returns "" when none is
// present or the value is blank.
func EmailField(row map[string]string) string {
	for _, k := range emailKeys {
		if v, ok := row[k]; ok {
			return strings.TrimSpace(v)
		}
	}
	for k, v := range row {
		if strings.EqualFold(k, "email") {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func verdict(valid bool) string {
	if valid {
		return "Valid"
	}
	return "Invalid"
}
