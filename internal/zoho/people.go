package zoho

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Doer 已鉴权的远端调用（由 Caller 实现）
type Doer interface {
	Do(ctx context.Context, orgID string, req *Request) (*Response, error)
}

// PeopleClient Zoho People 数据接口的类型化封装
type PeopleClient struct {
	caller Doer
}

// NewPeopleClient 创建 PeopleClient
func NewPeopleClient(caller Doer) *PeopleClient {
	return &PeopleClient{caller: caller}
}

// HolidayQuery 节假日查询条件，字段均可选
type HolidayQuery struct {
	Location string
	Shift    string
	Employee string
	From     *time.Time
	To       *time.Time
}

// GetAttendance 查询某员工某日考勤
func (p *PeopleClient) GetAttendance(ctx context.Context, orgID string, id Identity, date time.Time) (*ListResult[AttendanceEntry], error) {
	q := url.Values{}
	q.Set("date", FormatZohoDate(date))
	q.Set(id.AttendanceParam(), id.Value)

	body, err := p.do(ctx, orgID, &Request{Method: http.MethodGet, Path: PathAttendanceEntries, Query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[AttendanceEntry](body)
}

// GetHolidays 查询节假日
func (p *PeopleClient) GetHolidays(ctx context.Context, orgID string, hq HolidayQuery) (*ListResult[Holiday], error) {
	q := url.Values{}
	if hq.Location != "" {
		q.Set("location", hq.Location)
	}
	if hq.Shift != "" {
		q.Set("shift", hq.Shift)
	}
	if hq.Employee != "" {
		q.Set("employee", hq.Employee)
	}
	if hq.From != nil {
		q.Set("from", FormatZohoDate(*hq.From))
	}
	if hq.To != nil {
		q.Set("to", FormatZohoDate(*hq.To))
	}

	body, err := p.do(ctx, orgID, &Request{Method: http.MethodGet, Path: PathHolidays, Query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[Holiday](body)
}

// GetLeaveRecords 查询请假记录；id 为 nil 时不限定员工
func (p *PeopleClient) GetLeaveRecords(ctx context.Context, orgID string, id *Identity, from, to time.Time) (*ListResult[LeaveRecord], error) {
	q := url.Values{}
	q.Set("fromDate", FormatISODate(from))
	q.Set("toDate", FormatISODate(to))
	if id != nil {
		q.Set(id.LeaveRecordsParam(), id.Value)
	}

	body, err := p.do(ctx, orgID, &Request{Method: http.MethodGet, Path: PathLeaveRecords, Query: q})
	if err != nil {
		return nil, err
	}
	return decodeList[LeaveRecord](body)
}

// InsertLeaveRecord 向 Zoho 表单提交一条请假申请，inputData 为 JSON 编码的员工标识与请假字段
func (p *PeopleClient) InsertLeaveRecord(ctx context.Context, orgID string, id Identity, formLinkName string, fields map[string]interface{}) (*FormInsertResult, error) {
	if formLinkName == "" {
		formLinkName = DefaultFormLinkName
	}

	input := make(map[string]interface{}, len(fields)+1)
	for k, v := range fields {
		// 员工身份只能来自映射
		if v != nil && !IsIdentityField(k) {
			input[k] = v
		}
	}
	input[id.FormField()] = id.Value

	encoded, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("编码 inputData 失败: %w", err)
	}

	form := url.Values{}
	form.Set("inputData", string(encoded))

	body, err := p.do(ctx, orgID, &Request{
		Method: http.MethodPost,
		Path:   fmt.Sprintf(pathFormInsertFmt, url.PathEscape(formLinkName)),
		Form:   form,
	})
	if err != nil {
		return nil, err
	}

	if err := envelopeError(body); err != nil {
		return nil, err
	}

	result := &FormInsertResult{Raw: json.RawMessage(body)}
	var envelope struct {
		Response struct {
			Message string          `json:"message"`
			Result  json.RawMessage `json:"result"`
		} `json:"response"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil {
		result.Message = envelope.Response.Message
		if r, err := newRecord(envelope.Response.Result); err == nil {
			result.RecordID = r.str("pkId", "recordId", "id")
		}
	}
	return result, nil
}

// do 执行调用并把非 2xx 响应转换为 UpstreamError
func (p *PeopleClient) do(ctx context.Context, orgID string, req *Request) ([]byte, error) {
	resp, err := p.caller.Do(ctx, orgID, req)
	if err != nil {
		if resp != nil && errors.Is(err, ErrAuthFailed) {
			return nil, &UpstreamError{Status: resp.StatusCode, Body: truncateBody(resp.Body), Err: ErrAuthFailed}
		}
		return nil, err
	}
	if !resp.OK() {
		var e error
		if resp.StatusCode == http.StatusUnauthorized {
			e = ErrAuthFailed
		}
		return nil, &UpstreamError{Status: resp.StatusCode, Body: truncateBody(resp.Body), Err: e}
	}
	return resp.Body, nil
}
