package msc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ajitpratap0/freightsync/pkg/carrier/base"
	"github.com/ajitpratap0/freightsync/pkg/carrier/core"
	"github.com/ajitpratap0/freightsync/pkg/clients"
	"github.com/ajitpratap0/freightsync/pkg/errors"
	"github.com/ajitpratap0/freightsync/pkg/models"
)

// fakeS3 serves a fixed set of objects, two per page.
type fakeS3 struct {
	objects map[string][]byte
	order   []string
	times   map[string]time.Time
	listErr error
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, times: map[string]time.Time{}}
}

func (f *fakeS3) put(key string, at time.Time, body string) {
	f.objects[key] = []byte(body)
	f.times[key] = at
	f.order = append(f.order, key)
}

func (f *fakeS3) ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	start := 0
	if in.ContinuationToken != nil {
		for i, k := range f.order {
			if k == *in.ContinuationToken {
				start = i
			}
		}
	}
	end := start + 2
	if end > len(f.order) {
		end = len(f.order)
	}

	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(end < len(f.order))}
	for _, k := range f.order[start:end] {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k), LastModified: aws.Time(f.times[k])})
	}
	if end < len(f.order) {
		out.NextContinuationToken = aws.String(f.order[end])
	}
	return out, nil
}

func (f *fakeS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := f.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

const plainNotification = "From: notifications@msc.com\r\n" +
	"To: ops@example.com\r\n" +
	"Subject: Container status update\r\n" +
	"Message-Id: <abc123@msc.com>\r\n" +
	"Date: Sun, 10 Mar 2024 14:00:00 +0000\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"\r\n" +
	"Container: MSCU7654321\r\n" +
	"Status: Discharged\r\n" +
	"Location: Antwerp BEANR\r\n" +
	"\r\n" +
	"Container: MSCU1111111\r\n" +
	"Status: Gate Out\r\n"

const multipartNotification = "From: notifications@msc.com\r\n" +
	"Subject: Arrival notice\r\n" +
	"MIME-Version: 1.0\r\n" +
	"Content-Type: multipart/alternative; boundary=\"XYZ\"\r\n" +
	"\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/html\r\n" +
	"\r\n" +
	"<p>ignored</p>\r\n" +
	"--XYZ\r\n" +
	"Content-Type: text/plain; charset=utf-8\r\n" +
	"Content-Transfer-Encoding: quoted-printable\r\n" +
	"\r\n" +
	"Container: MSCU2222222\r\n" +
	"Status: Arrived\r\n" +
	"Vessel: MSC G=C3=9CLSUN\r\n" +
	"--XYZ--\r\n"

const base64Notification = "Subject: Update\r\n" +
	"Content-Type: text/plain\r\n" +
	"Content-Transfer-Encoding: base64\r\n" +
	"\r\n" +
	"Q29udGFpbmVyOiBNU0NVMzMzMzMzMwpTdGF0dXM6IExv\r\n" +
	"YWRlZAo=\r\n"

func TestParseNotification(t *testing.T) {
	records, err := parseNotification([]byte(plainNotification))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "MSCU7654321", records[0]["containerNumber"])
	assert.Equal(t, "Antwerp BEANR", records[0]["currentLocation"])
	assert.Equal(t, "abc123@msc.com", records[0]["messageId"])
	assert.Equal(t, "2024-03-10T14:00:00Z", records[0]["receivedAt"])
	assert.Equal(t, "Gate Out", records[1]["status"])

	records, err = parseNotification([]byte(multipartNotification))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MSCU2222222", records[0]["containerNumber"])
	assert.Equal(t, "MSC GÜLSUN", records[0]["vessel"])

	records, err = parseNotification([]byte(base64Notification))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MSCU3333333", records[0]["containerNumber"])
	assert.Equal(t, "Loaded", records[0]["status"])

	_, err = parseNotification([]byte("Content-Type: text/html\r\n\r\n<p>x</p>"))
	assert.True(t, errors.IsType(err, errors.ErrorTypeData))
}

func TestS3Mailbox_ListPagesAndSorts(t *testing.T) {
	fake := newFakeS3()
	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	fake.put("inbox/c", t0.Add(3*time.Hour), "")
	fake.put("inbox/a", t0.Add(1*time.Hour), "")
	fake.put("inbox/b", t0.Add(2*time.Hour), "")

	refs, err := NewS3Mailbox(fake, "mail").List(context.Background(), "inbox/", time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, []string{"inbox/a", "inbox/b", "inbox/c"}, []string{refs[0].Key, refs[1].Key, refs[2].Key})

	refs, err = NewS3Mailbox(fake, "mail").List(context.Background(), "inbox/", time.Time{}, 2)
	require.NoError(t, err)
	assert.Len(t, refs, 2)

	refs, err = NewS3Mailbox(fake, "mail").List(context.Background(), "inbox/", t0.Add(time.Hour), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"inbox/b", "inbox/c"}, []string{refs[0].Key, refs[1].Key})

	_, err = NewS3Mailbox(fake, "mail").Read(context.Background(), "missing")
	assert.True(t, errors.IsType(err, errors.ErrorTypeNotFound))
}

func newEmailAdapter(fake *fakeS3) *Adapter {
	a := New(base.Deps{Logger: zap.NewNop()})
	a.openMailbox = func(ctx context.Context, creds models.Credentials) (Mailbox, error) {
		return NewS3Mailbox(fake, creds.Get(CredMailboxBucket)), nil
	}
	return a
}

func TestFetchViaEmail(t *testing.T) {
	fake := newFakeS3()
	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	fake.put("old", t0, plainNotification)
	fake.put("broken", t0.Add(time.Hour), "not an email at all")
	fake.put("new", t0.Add(2*time.Hour), multipartNotification)

	a := newEmailAdapter(fake)
	creds := models.Credentials{CredMailboxBucket: "mail"}

	records, err := a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking, nil)
	require.NoError(t, err)
	assert.Len(t, records, 3)

	records, err = a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking,
		core.Params{"containerNumber": "MSCU1111111"})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Gate Out", records[0]["status"])

	records, err = a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking,
		core.Params{"since": t0.Add(30 * time.Minute).Format(time.RFC3339)})
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "MSCU2222222", records[0]["containerNumber"])

	_, err = a.FetchViaEmail(context.Background(), creds, core.DataTypeSchedules, nil)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))

	_, err = a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking, core.Params{"since": "yesterday"})
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

func TestFetchViaEmail_SinceAppliesBeforeLimit(t *testing.T) {
	fake := newFakeS3()
	t0 := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 60; i++ {
		body := "Subject: Update\r\n\r\nContainer: MSCU" + fmt.Sprintf("%07d", i) + "\r\nStatus: Loaded\r\n"
		fake.put(fmt.Sprintf("msg-%02d", i), t0.Add(time.Duration(i)*time.Minute), body)
	}

	a := newEmailAdapter(fake)
	creds := models.Credentials{CredMailboxBucket: "mail"}

	records, err := a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking,
		core.Params{"since": t0.Add(55 * time.Minute).Format(time.RFC3339)})
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "MSCU0000056", records[0]["containerNumber"])
	assert.Equal(t, "MSCU0000059", records[3]["containerNumber"])

	records, err = a.FetchViaEmail(context.Background(), creds, core.DataTypeTracking, nil)
	require.NoError(t, err)
	assert.Len(t, records, defaultEmailLimit)
}

func TestTestConnection_Email(t *testing.T) {
	fake := newFakeS3()
	a := newEmailAdapter(fake)

	assert.True(t, a.TestConnection(context.Background(), models.Credentials{CredMailboxBucket: "mail"}, models.TransportEmail).Success)

	fake.listErr = &types.NoSuchBucket{}
	res := a.TestConnection(context.Background(), models.Credentials{CredMailboxBucket: "mail"}, models.TransportEmail)
	assert.False(t, res.Success)
	assert.True(t, errors.IsType(res.Err, errors.ErrorTypeConfig))
}

func TestOpenS3Mailbox_RequiresBucket(t *testing.T) {
	_, err := openS3Mailbox(context.Background(), models.Credentials{}, http.DefaultClient)
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
}

const trackingBody = `{
  "Data": {
    "BillOfLadings": [{
      "BillOfLadingNumber": "MEDU1234567",
      "GeneralTrackingInfo": {"PortOfLoad": "SHANGHAI, CN", "PortOfDischarge": "ANTWERP, BE", "ShippedDate": "2024-02-01"},
      "ContainersInfo": [
        {"ContainerNumber": "MSCU7654321", "PodEtaDate": "2024-03-12",
         "LatestMove": {"Description": "Loaded on vessel", "Location": "ALGECIRAS ESALG", "Vessel": "MSC GULSUN", "Voyage": "FA410R"}},
        {"ContainerNumber": "MSCU1111111", "LatestMove": {"Description": "Empty to shipper"}}
      ]
    }]
  }
}`

func TestFetchViaAPI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "key-1", r.Header.Get("MSC-Api-Key"))
		assert.Equal(t, "/api/v1/tracking/bookings/BK9", r.URL.Path)
		_, _ = w.Write([]byte(trackingBody))
	}))
	defer srv.Close()

	cfg := clients.DefaultHTTPConfig()
	cfg.EnableHTTP2 = false
	a := New(base.Deps{Client: clients.NewHTTPClient(cfg, zap.NewNop()), Logger: zap.NewNop()}, base.WithBaseURL(srv.URL))

	records, err := a.FetchViaAPI(context.Background(), models.Credentials{"api_key": "key-1"},
		core.DataTypeBookings, core.Params{"bookingNumber": "BK9"})
	require.NoError(t, err)
	require.Len(t, records, 2)

	assert.Equal(t, models.RawRecord{
		"containerNumber": "MSCU7654321",
		"status":          "Loaded on vessel",
		"currentLocation": "ALGECIRAS ESALG",
		"eta":             "2024-03-12",
		"vessel":          "MSC GULSUN",
		"voyage":          "FA410R",
		"billOfLading":    "MEDU1234567",
		"origin":          "SHANGHAI, CN",
		"destination":     "ANTWERP, BE",
		"etd":             "2024-02-01",
	}, records[0])
	assert.Equal(t, "MEDU1234567", records[1]["billOfLading"])
	assert.NotContains(t, records[1], "eta")
}
