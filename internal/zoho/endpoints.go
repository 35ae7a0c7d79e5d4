package zoho

import (
	"net/url"
	"strings"
	"time"
)

// Zoho People 接口路径
const (
	PathAuthorize         = "/oauth/v2/auth"
	PathToken             = "/oauth/v2/token"
	PathAttendanceEntries = "/people/api/attendance/getAttendanceEntries"
	PathHolidays          = "/people/api/leave/v2/holidays/get"
	PathLeaveRecords      = "/api/v2/leavetracker/leaves/records"
	pathFormInsertFmt     = "/api/forms/json/%s/insertRecord"

	DefaultAccountsBaseURL = "https://accounts.zoho.com"
	DefaultPeopleBaseURL   = "https://people.zoho.com"
	DefaultFormLinkName    = "LeaveApplication"
)

// DefaultScopes 发起授权时申请的权限
var DefaultScopes = []string{
	"ZOHOPEOPLE.leave.ALL",
	"ZOHOPEOPLE.leave.READ",
	"ZOHOPEOPLE.attendance.READ",
	"ZOHOPEOPLE.forms.CREATE",
}

// 日期格式：考勤与节假日接口使用 dd-MMM-yyyy，请假记录接口使用 ISO 日期
const (
	ZohoDateLayout = "02-Jan-2006"
	ISODateLayout  = "2006-01-02"
)

// FormatZohoDate 格式化为 dd-MMM-yyyy
func FormatZohoDate(t time.Time) string { return t.Format(ZohoDateLayout) }

// FormatISODate 格式化为 yyyy-mm-dd
func FormatISODate(t time.Time) string { return t.Format(ISODateLayout) }

// ParseDate 同时接受 yyyy-mm-dd 与 dd-MMM-yyyy
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range []string{ISODateLayout, ZohoDateLayout} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, ErrInvalidDate
}

// ValidateAccountsServer 仅接受 https://accounts.zoho.<region> 形式的地址，返回规范化后的 base URL
func ValidateAccountsServer(raw string) (string, bool) {
	if raw == "" {
		return "", false
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme != "https" || u.User != nil {
		return "", false
	}
	if u.Path != "" && u.Path != "/" {
		return "", false
	}
	host := strings.ToLower(u.Hostname())
	region, found := strings.CutPrefix(host, "accounts.zoho.")
	if !found || u.Port() != "" || !zohoRegions[region] {
		return "", false
	}
	return "https://" + host, true
}

// Zoho 数据中心顶级域
var zohoRegions = map[string]bool{
	"com": true, "eu": true, "in": true, "com.au": true, "jp": true,
	"ca": true, "com.cn": true, "sa": true, "uk": true,
}

// DerivePeopleBaseURL 依次根据 token 响应的 api_domain、accounts server 推导数据接口地址
func DerivePeopleBaseURL(apiDomain, accountsBaseURL string) string {
	if apiDomain != "" && strings.Contains(apiDomain, "www.zohoapis") {
		return strings.TrimRight(strings.Replace(apiDomain, "www.zohoapis", "people.zoho", 1), "/")
	}
	if accountsBaseURL != "" && strings.Contains(accountsBaseURL, "accounts.zoho") {
		return strings.TrimRight(strings.Replace(accountsBaseURL, "accounts.zoho", "people.zoho", 1), "/")
	}
	return DefaultPeopleBaseURL
}

// 回调 location 参数与数据中心的对应关系
var locationRegions = map[string]string{
	"us": "com", "eu": "eu", "in": "in", "au": "com.au", "jp": "jp",
	"ca": "ca", "cn": "com.cn", "sa": "sa", "uk": "uk",
}

// AccountsURLForLocation 根据回调中的 location 参数推导 accounts server
func AccountsURLForLocation(location string) (string, bool) {
	region, ok := locationRegions[strings.ToLower(strings.TrimSpace(location))]
	if !ok {
		return "", false
	}
	return "https://accounts.zoho." + region, true
}
