package sheets

import (
	"context"
	"fmt"
	"strings"
	"time"

	sheetsv4 "google.golang.org/api/sheets/v4"

	"iftar-reg/internal/models"
	"iftar-reg/internal/util"
)

// Column layout of the registrations sheet. Row 1 is a header.
//
//	A timestamp  B name  C studentId  D email  E phone  F batch  G dept
//	H paymentMethod  I senderNo  J trxId  K section
const (
	colTimestamp = iota
	colName
	colStudentID
	colEmail
	colPhone
	colBatch
	colDept
	colPaymentMethod
	colSenderNo
	colTrxID
	colSection
)

// Header is written by EnsureHeader on an empty sheet.
var Header = []interface{}{
	"Timestamp", "Name", "Student ID", "Email", "Phone", "Batch", "Dept",
	"Payment Method", "Sender No", "Trx ID", "Section",
}

func (c *Client) rangeA1() string { return c.sheet + "!A:K" }

func (c *Client) readAll(ctx context.Context) ([][]interface{}, error) {
	resp, err := c.srv.Spreadsheets.Values.Get(c.spreadsheetID, c.rangeA1()).Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

func (c *Client) appendRow(ctx context.Context, row []interface{}) error {
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{row}}
	_, err := c.srv.Spreadsheets.Values.Append(c.spreadsheetID, c.rangeA1(), vr).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	return err
}

// ---------- Registrations ----------

// Row is the sheet row for rec, in column order.
func Row(ts time.Time, rec models.RegistrationRecord) []interface{} {
	return []interface{}{
		util.ISO(ts),
		rec.Name,
		rec.StudentID,
		rec.Email,
		rec.Phone,
		rec.Batch,
		rec.Dept,
		string(rec.PaymentMethod),
		rec.SenderNo,
		rec.TrxID,
		rec.Section,
	}
}

func (c *Client) AppendRegistration(ctx context.Context, ts time.Time, rec models.RegistrationRecord) error {
	if err := c.appendRow(ctx, Row(ts, rec)); err != nil {
		return fmt.Errorf("append registration: %w", err)
	}
	return nil
}

// ListRegistrants returns every data row that has both a name and a student ID.
func (c *Client) ListRegistrants(ctx context.Context) ([]models.RegistrantSummary, error) {
	values, err := c.readAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	out := []models.RegistrantSummary{}
	// header row at index 0
	for i := 1; i < len(values); i++ {
		row := values[i]
		s := models.RegistrantSummary{
			Name:      get(row, colName),
			StudentID: get(row, colStudentID),
			Batch:     get(row, colBatch),
			Dept:      get(row, colDept),
		}
		if strings.TrimSpace(s.Name) == "" || strings.TrimSpace(s.StudentID) == "" {
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// ListRecords returns the full rows, for the admin export.
func (c *Client) ListRecords(ctx context.Context) ([]StoredRecord, error) {
	values, err := c.readAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("read registrations: %w", err)
	}
	out := []StoredRecord{}
	for i := 1; i < len(values); i++ {
		row := values[i]
		if len(row) == 0 {
			continue
		}
		out = append(out, StoredRecord{
			Timestamp: get(row, colTimestamp),
			Record: models.RegistrationRecord{
				Name:          get(row, colName),
				StudentID:     get(row, colStudentID),
				Email:         get(row, colEmail),
				Phone:         get(row, colPhone),
				Batch:         get(row, colBatch),
				Dept:          get(row, colDept),
				PaymentMethod: models.PaymentMethod(get(row, colPaymentMethod)),
				SenderNo:      get(row, colSenderNo),
				TrxID:         get(row, colTrxID),
				Section:       get(row, colSection),
			},
		})
	}
	return out, nil
}

type StoredRecord struct {
	Timestamp string
	Record    models.RegistrationRecord
}

func (c *Client) HasStudentID(ctx context.Context, studentID string) (bool, error) {
	values, err := c.readAll(ctx)
	if err != nil {
		return false, fmt.Errorf("read registrations: %w", err)
	}
	studentID = strings.TrimSpace(studentID)
	for i := 1; i < len(values); i++ {
		if strings.TrimSpace(get(values[i], colStudentID)) == studentID {
			return true, nil
		}
	}
	return false, nil
}

// EnsureHeader writes the header row when the sheet is empty.
func (c *Client) EnsureHeader(ctx context.Context) error {
	values, err := c.readAll(ctx)
	if err != nil {
		return fmt.Errorf("read registrations: %w", err)
	}
	if len(values) > 0 {
		return nil
	}
	vr := &sheetsv4.ValueRange{Values: [][]interface{}{Header}}
	_, err = c.srv.Spreadsheets.Values.Update(c.spreadsheetID, c.sheet+"!A1:K1", vr).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// ---------- helpers ----------

func get(row []interface{}, idx int) string {
	if idx < 0 || idx >= len(row) || row[idx] == nil {
		return ""
	}
	return fmt.Sprint(row[idx])
}
