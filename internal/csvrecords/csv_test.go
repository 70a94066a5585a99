package csvrecords_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/studiocloud/mailverify/batch"
	"github.com/studiocloud/mailverify/internal/csvrecords"
	"github.com/studiocloud/mailverify/types"
)

func TestRead(t *testing.T) {
	in := "\uFEFFname , email\n" +
		"Ann,  ann@example.com  \n" +
		"\n" +
		" , \n" +
		"Bob\n" +
		"\"Smith, Carl\",carl@example.com\n"

	headers, rows, err := csvrecords.Read(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []string{"name", "email"}, headers)
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]string{"name": "Ann", "email": "ann@example.com"}, rows[0])
	assert.Equal(t, map[string]string{"name": "Bob", "email": ""}, rows[1])
	assert.Equal(t, "Smith, Carl", rows[2]["name"])
}

func TestRead_HeaderOnly(t *testing.T) {
	headers, rows, err := csvrecords.Read(strings.NewReader("email\n"))
	require.NoError(t, err)
	assert.Equal(t, []string{"email"}, headers)
	assert.Empty(t, rows)
}

func TestRead_Empty(t *testing.T) {
	_, _, err := csvrecords.Read(strings.NewReader("\n\n"))
	assert.ErrorIs(t, err, csvrecords.ErrNoHeader)
}

func TestRead_Malformed(t *testing.T) {
	_, _, err := csvrecords.Read(strings.NewReader("email\n\"unterminated\n"))
	assert.ErrorContains(t, err, "parse csv")
}

func TestWrite(t *testing.T) {
	records := []batch.Record{
		{
			Index:  0,
			Fields: map[string]string{"name": "Ann", "email": "ann@example.com"},
			Result: types.CheckResult{Valid: true, Reason: "Mailbox exists", Checks: types.Checks{MX: true, DNS: true, SPF: true, Mailbox: true, SMTP: true}},
		},
		{
			Index:  1,
			Fields: map[string]string{"name": "Bob"},
			Result: types.Invalid("No email address found"),
		},
	}

	var buf bytes.Buffer
	require.NoError(t, csvrecords.Write(&buf, []string{"name", "email"}, records))

	want := "name,email,validation_result,validation_reason,mx_check,dns_check,spf_check,mailbox_check,smtp_check\n" +
		"Ann,ann@example.com,Valid,Mailbox exists,true,true,true,true,true\n" +
		"Bob,,Invalid,No email address found,false,false,false,false,false\n"
	assert.Equal(t, want, buf.String())
}
