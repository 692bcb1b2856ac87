package endpoint_test

import (
	"bytes"
	"encoding/json"
	"io/ioutil"
	"math/rand"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-kit/kit/log"

	"github.com/abustany/monthly-board/pkg/endpoint"
	"github.com/abustany/monthly-board/pkg/kvstore"
	"github.com/abustany/monthly-board/pkg/postservice"
	"github.com/abustany/monthly-board/pkg/poststore"
	"github.com/abustany/monthly-board/pkg/types"
)

var startTime = time.Date(2024, time.January, 15, 10, 0, 0, 0, time.UTC)

var pngHeader = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR\x00\x00\x00\x01\x00\x00\x00\x01")

func fakeClock(start time.Time, step time.Duration) func() time.Time {
	current := start.Add(-step)

	return func() time.Time {
		current = current.Add(step)
		return current
	}
}

// noRedirect is a client that hands redirects back to the test.
var noRedirect = &http.Client{
	CheckRedirect: func(req *http.Request, via []*http.Request) error {
		return http.ErrUseLastResponse
	},
}

func TestEndpoint(t *testing.T) {
	withUrl := func(f func(*testing.T, string)) func(*testing.T) {
		return func(t *testing.T) {
			service := postservice.New(
				poststore.New(kvstore.NewMemoryStore(0), time.UTC),
				postservice.WithClock(fakeClock(startTime, time.Minute)),
				postservice.WithRand(rand.New(rand.NewSource(1))),
			)

			ep := endpoint.NewHttpEndpoint(log.NewNopLogger(), service, endpoint.Options{
				Backgrounds: []string{"background.jpg"},
				Location:    time.UTC,
			})
			server := httptest.NewServer(ep)
			defer server.Close()

			f(t, server.URL)
		}
	}

	t.Run("Add (invalid json)", withUrl(testAddInvalidJson))
	t.Run("Add (content type)", withUrl(testAddContentType))
	t.Run("Add (validation)", withUrl(testAddInvalid))
	t.Run("Add", withUrl(testAdd))
	t.Run("Reply", withUrl(testReply))
	t.Run("Get (missing)", withUrl(testGetMissing))
	t.Run("Update", withUrl(testUpdate))
	t.Run("Delete", withUrl(testDelete))
	t.Run("List", withUrl(testList))
	t.Run("Months", withUrl(testMonths))
	t.Run("Health", withUrl(testHealth))

	t.Run("Page (empty)", withUrl(testPageEmpty))
	t.Run("Page", withUrl(testPage))
	t.Run("Form post", withUrl(testFormPost))
	t.Run("Form post (image)", withUrl(testFormPostImage))
	t.Run("Form edit", withUrl(testFormEdit))
	t.Run("Form delete", withUrl(testFormDelete))
}

func doRequest(t *testing.T, method, url string, body interface{}) *http.Response {
	buffer := bytes.Buffer{}

	if body != nil {
		if err := json.NewEncoder(&buffer).Encode(body); err != nil {
			t.Fatalf("Error while encoding JSON: %s", err)
		}
	}

	req, err := http.NewRequest(method, url, &buffer)

	if err != nil {
		t.Fatalf("Error while creating request: %s", err)
	}

	if body != nil {
		req.Header.Set("Content-Type", endpoint.JsonContentType)
	}

	res, err := http.DefaultClient.Do(req)

	if err != nil {
		t.Fatalf("Error sending request: %s", err)
	}

	return res
}

func expectStatus(t *testing.T, res *http.Response, expectedStatus int) {
	if res.StatusCode != expectedStatus {
		t.Fatalf("Unexpected HTTP status, got %d, expected %d", res.StatusCode, expectedStatus)
	}
}

func postPost(t *testing.T, serverUrl string, post postservice.NewPost, expectedStatus int) types.Post {
	res := doRequest(t, "POST", serverUrl+"/api/posts", post)
	defer res.Body.Close()

	expectStatus(t, res, expectedStatus)

	var created types.Post

	if expectedStatus == http.StatusCreated {
		if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
			t.Fatalf("Decoding created post failed: %s", err)
		}
	}

	return created
}

func getPost(t *testing.T, serverUrl string, id float64) types.Post {
	res := doRequest(t, "GET", serverUrl+"/api/posts/"+endpoint.FormatID(id), nil)
	defer res.Body.Close()

	expectStatus(t, res, http.StatusOK)

	var post types.Post

	if err := json.NewDecoder(res.Body).Decode(&post); err != nil {
		t.Fatalf("Decoding post failed: %s", err)
	}

	return post
}

func testAddInvalidJson(t *testing.T, url string) {
	const invalidJson = "not json at all"

	res, err := http.Post(url+"/api/posts", endpoint.JsonContentType, strings.NewReader(invalidJson))

	if err != nil {
		t.Fatalf("Error sending request: %s", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("HTTP status when sending invalid request should be bad request")
	}
}

func testAddContentType(t *testing.T, url string) {
	res, err := http.Post(url+"/api/posts", "text/plain", strings.NewReader(`{"name": "n", "message": "m"}`))

	if err != nil {
		t.Fatalf("Error sending request: %s", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusBadRequest {
		t.Errorf("HTTP status when sending a non JSON content type should be bad request, got %d", res.StatusCode)
	}
}

func testAddInvalid(t *testing.T, url string) {
	postPost(t, url, postservice.NewPost{Name: "  ", Message: "hello"}, http.StatusBadRequest)
	postPost(t, url, postservice.NewPost{Name: "John", Message: ""}, http.StatusBadRequest)

	notAnImage := "data:text/plain;base64,aGVsbG8="
	postPost(t, url, postservice.NewPost{Name: "John", Message: "hello", ImageData: &notAnImage}, http.StatusBadRequest)
}

func testAdd(t *testing.T, url string) {
	res := doRequest(t, "POST", url+"/api/posts", postservice.NewPost{Name: " John ", Message: "this is my message"})
	defer res.Body.Close()

	expectStatus(t, res, http.StatusCreated)

	if res.Header.Get(endpoint.RequestIDHeader) == "" {
		t.Errorf("Response is missing a request id")
	}

	var created types.Post

	if err := json.NewDecoder(res.Body).Decode(&created); err != nil {
		t.Fatalf("Decoding created post failed: %s", err)
	}

	if created.Name != "John" || created.Message != "this is my message" || !created.Date.Equal(startTime) {
		t.Errorf("Unexpected post returned after adding: %+v", created)
	}

	if created.Replies == nil || len(created.Replies) != 0 {
		t.Errorf("New post should have an empty list of replies, got %v", created.Replies)
	}

	if post := getPost(t, url, created.ID); !post.Equal(created) {
		t.Errorf("Unexpected post returned by get: got %+v, expected %+v", post, created)
	}
}

func testReply(t *testing.T, url string) {
	parent := postPost(t, url, postservice.NewPost{Name: "A", Message: "question"}, http.StatusCreated)
	reply := postPost(t, url, postservice.NewPost{Name: "B", Message: "answer", ParentID: &parent.ID}, http.StatusCreated)
	postPost(t, url, postservice.NewPost{Name: "C", Message: "again", ParentID: &reply.ID}, http.StatusCreated)

	post := getPost(t, url, parent.ID)

	if len(post.Replies) != 1 || post.Replies[0].ID != reply.ID || len(post.Replies[0].Replies) != 1 {
		t.Errorf("Unexpected replies after replying: %+v", post.Replies)
	}

	missing := parent.ID + 1
	postPost(t, url, postservice.NewPost{Name: "D", Message: "lost", ParentID: &missing}, http.StatusNotFound)
}

func testGetMissing(t *testing.T, url string) {
	res := doRequest(t, "GET", url+"/api/posts/123.5", nil)
	defer res.Body.Close()

	expectStatus(t, res, http.StatusNotFound)
}

func testUpdate(t *testing.T, url string) {
	image := "data:image/png;base64,AAAA"
	created := postPost(t, url, postservice.NewPost{Name: "John", Message: "first", ImageData: &image}, http.StatusCreated)
	postUrl := url + "/api/posts/" + endpoint.FormatID(created.ID)

	t.Run("Message only", func(t *testing.T) {
		res := doRequest(t, "POST", postUrl, map[string]interface{}{"message": "I changed my mind"})
		res.Body.Close()
		expectStatus(t, res, http.StatusOK)

		post := getPost(t, url, created.ID)

		if post.Message != "I changed my mind" || post.Name != "John" || !post.HasImage() {
			t.Errorf("Unexpected post after update: %+v", post)
		}
	})

	t.Run("Clear image", func(t *testing.T) {
		res := doRequest(t, "POST", postUrl, map[string]interface{}{"imageData": nil})
		res.Body.Close()
		expectStatus(t, res, http.StatusOK)

		if post := getPost(t, url, created.ID); post.ImageData != nil {
			t.Errorf("Image should have been cleared, got %v", *post.ImageData)
		}
	})

	t.Run("Empty", func(t *testing.T) {
		res := doRequest(t, "POST", postUrl, map[string]interface{}{})
		res.Body.Close()
		expectStatus(t, res, http.StatusBadRequest)
	})

	t.Run("Missing", func(t *testing.T) {
		res := doRequest(t, "POST", url+"/api/posts/42", map[string]interface{}{"message": "hello"})
		res.Body.Close()
		expectStatus(t, res, http.StatusNotFound)
	})
}

func testDelete(t *testing.T, url string) {
	parent := postPost(t, url, postservice.NewPost{Name: "A", Message: "question"}, http.StatusCreated)
	reply := postPost(t, url, postservice.NewPost{Name: "B", Message: "answer", ParentID: &parent.ID}, http.StatusCreated)

	res := doRequest(t, "DELETE", url+"/api/posts/"+endpoint.FormatID(parent.ID), nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusNoContent)

	res = doRequest(t, "GET", url+"/api/posts/"+endpoint.FormatID(reply.ID), nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusNotFound)

	res = doRequest(t, "DELETE", url+"/api/posts/"+endpoint.FormatID(parent.ID), nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusNotFound)
}

func listPostsFull(t *testing.T, serverUrl, month, cursor string, pageSize int, expectedNumber int) ([]types.Post, string) {
	req, err := http.NewRequest("GET", serverUrl+"/api/posts", nil)

	if err != nil {
		t.Fatalf("Error while creating request: %s", err)
	}

	queryParams := url.Values{}
	queryParams.Set("n", strconv.Itoa(pageSize))
	queryParams.Set("cursor", cursor)
	queryParams.Set("month", month)
	req.URL.RawQuery = queryParams.Encode()

	res, err := http.DefaultClient.Do(req)

	if err != nil {
		t.Fatalf("Error while sending request: %s", err)
	}

	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("Unexpected status code for list response: %d", res.StatusCode)
	}

	var listResponse endpoint.ListResponse

	if err := json.NewDecoder(res.Body).Decode(&listResponse); err != nil {
		t.Fatalf("Decoding list response failed: %s", err)
	}

	if len(listResponse.Posts) != expectedNumber {
		t.Fatalf("List returned %d posts, expected %d", len(listResponse.Posts), expectedNumber)
	}

	return listResponse.Posts, listResponse.Next
}

func testList(t *testing.T, url string) {
	listPostsFull(t, url, "", "", 100, 0)

	first := postPost(t, url, postservice.NewPost{Name: "A1", Message: "M1"}, http.StatusCreated)
	second := postPost(t, url, postservice.NewPost{Name: "A2", Message: "M2"}, http.StatusCreated)

	list, cursor := listPostsFull(t, url, "", "", 1, 1)

	// Most recent posts first
	if list[0].ID != second.ID {
		t.Errorf("Unexpected post on first page: got %+v, expected %+v", list[0], second)
	}

	if cursor == "" {
		t.Errorf("List returned an empty cursor with some posts remaining to list")
	}

	list, cursor = listPostsFull(t, url, "", cursor, 1, 1)

	if list[0].ID != first.ID {
		t.Errorf("Unexpected post on second page: got %+v, expected %+v", list[0], first)
	}

	if cursor != "" {
		_, cursor = listPostsFull(t, url, "", cursor, 1, 0)
	}

	if cursor != "" {
		t.Errorf("List returned a non empty cursor at the end of the list")
	}

	listPostsFull(t, url, "2024/01", "", 100, 2)
	listPostsFull(t, url, "2023/12", "", 100, 0)

	res := doRequest(t, "GET", url+"/api/posts?month=january", nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusBadRequest)

	res = doRequest(t, "GET", url+"/api/posts?n=many", nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusBadRequest)
}

func testMonths(t *testing.T, url string) {
	postPost(t, url, postservice.NewPost{Name: "A", Message: "M"}, http.StatusCreated)

	res := doRequest(t, "GET", url+"/api/months", nil)
	defer res.Body.Close()

	expectStatus(t, res, http.StatusOK)

	var months endpoint.MonthsResponse

	if err := json.NewDecoder(res.Body).Decode(&months); err != nil {
		t.Fatalf("Decoding months failed: %s", err)
	}

	if len(months.Months) != 1 || months.Months[0] != "2024/01" {
		t.Errorf("Unexpected months: %v", months.Months)
	}
}

func testHealth(t *testing.T, url string) {
	res := doRequest(t, "GET", url+"/health", nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusOK)
}

func getPage(t *testing.T, pageUrl string) *goquery.Document {
	res, err := http.Get(pageUrl)

	if err != nil {
		t.Fatalf("Error while sending request: %s", err)
	}

	defer res.Body.Close()

	expectStatus(t, res, http.StatusOK)

	doc, err := goquery.NewDocumentFromReader(res.Body)

	if err != nil {
		t.Fatalf("Error while parsing page: %s", err)
	}

	return doc
}

func postSelector(id float64) string {
	return `.post[data-post-id="` + endpoint.FormatID(id) + `"]`
}

func testPageEmpty(t *testing.T, url string) {
	doc := getPage(t, url+"/")

	if msg := doc.Find(".empty-message").Text(); msg != endpoint.EmptyBoardMessage {
		t.Errorf("Unexpected empty board message: %q", msg)
	}

	if style, _ := doc.Find("body").Attr("style"); !strings.Contains(style, "background.jpg") {
		t.Errorf("Page should use the configured background, got style %q", style)
	}
}

func testPage(t *testing.T, url string) {
	parent := postPost(t, url, postservice.NewPost{Name: "Alice", Message: "<b>hello</b>"}, http.StatusCreated)
	reply := postPost(t, url, postservice.NewPost{Name: "Bob", Message: "hi", ParentID: &parent.ID}, http.StatusCreated)

	doc := getPage(t, url+"/?month=2024/01&reply="+endpoint.FormatID(reply.ID))

	if n := doc.Find(".post").Length(); n != 2 {
		t.Fatalf("Page shows %d posts, expected 2", n)
	}

	if count, _ := doc.Find("#posts").Attr("data-count"); count != "2" {
		t.Errorf("Unexpected post count: %q", count)
	}

	post := doc.Find(postSelector(parent.ID))

	if content := post.Find(".post-content").First().Text(); content != "<b>hello</b>" {
		t.Errorf("Message should be shown as text, got %q", content)
	}

	if date := post.Find(".post-date").First().Text(); date != "2024/01/15 10:00:00" {
		t.Errorf("Unexpected date format: %q", date)
	}

	if post.Find(postSelector(reply.ID)).Length() != 1 {
		t.Errorf("Reply should be nested inside its parent")
	}

	replyForm := doc.Find(".reply-form")

	if replyForm.Length() != 1 {
		t.Fatalf("Expected exactly one reply form, got %d", replyForm.Length())
	}

	if parentID, _ := replyForm.Find(`input[name="parent_id"]`).Attr("value"); parentID != endpoint.FormatID(reply.ID) {
		t.Errorf("Reply form targets %q, expected %q", parentID, endpoint.FormatID(reply.ID))
	}

	month := doc.Find(`.month-filter[data-month="2024/01"]`)

	if month.Text() != "2024年1月" || !month.HasClass("active") {
		t.Errorf("Unexpected month filter: %q", month.Text())
	}

	if doc.Find(".empty-message").Length() != 0 {
		t.Errorf("Empty board message shown on a board with posts")
	}

	if n := getPage(t, url+"/?month=2023/12").Find(".post").Length(); n != 0 {
		t.Errorf("Page for another month shows %d posts", n)
	}
}

func postForm(t *testing.T, url string, values url.Values) *http.Response {
	res, err := noRedirect.PostForm(url, values)

	if err != nil {
		t.Fatalf("Error while sending request: %s", err)
	}

	res.Body.Close()

	return res
}

func expectRedirect(t *testing.T, res *http.Response, expectedLocation string) {
	expectStatus(t, res, http.StatusSeeOther)

	if location := res.Header.Get("Location"); location != expectedLocation {
		t.Errorf("Unexpected redirect, got %q, expected %q", location, expectedLocation)
	}
}

func testFormPost(t *testing.T, url string) {
	res := postForm(t, url+"/posts", map[string][]string{
		"name":    {"Alice"},
		"message": {"from a form"},
		"month":   {"2024/01"},
	})

	expectRedirect(t, res, "/?month=2024%2F01")

	posts, _ := listPostsFull(t, url, "", "", 100, 1)

	if posts[0].Name != "Alice" || posts[0].Message != "from a form" {
		t.Errorf("Unexpected post after form submission: %+v", posts[0])
	}

	res = postForm(t, url+"/posts", map[string][]string{
		"name":      {"Bob"},
		"message":   {"a reply"},
		"parent_id": {endpoint.FormatID(posts[0].ID)},
	})

	expectRedirect(t, res, "/")

	if post := getPost(t, url, posts[0].ID); len(post.Replies) != 1 {
		t.Errorf("Reply submitted by form is missing")
	}

	res = postForm(t, url+"/posts", map[string][]string{"name": {""}, "message": {"m"}})
	expectStatus(t, res, http.StatusBadRequest)
}

func multipartBody(t *testing.T, fields map[string]string, image []byte) (*bytes.Buffer, string) {
	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)

	for name, value := range fields {
		if err := writer.WriteField(name, value); err != nil {
			t.Fatalf("Error while writing form field: %s", err)
		}
	}

	if image != nil {
		part, err := writer.CreateFormFile("image", "image.png")

		if err != nil {
			t.Fatalf("Error while creating form file: %s", err)
		}

		part.Write(image)
	}

	if err := writer.Close(); err != nil {
		t.Fatalf("Error while closing multipart writer: %s", err)
	}

	return body, writer.FormDataContentType()
}

func postMultipart(t *testing.T, url string, fields map[string]string, image []byte) *http.Response {
	body, contentType := multipartBody(t, fields, image)
	res, err := noRedirect.Post(url, contentType, body)

	if err != nil {
		t.Fatalf("Error while sending request: %s", err)
	}

	defer res.Body.Close()
	ioutil.ReadAll(res.Body)

	return res
}

func testFormPostImage(t *testing.T, url string) {
	res := postMultipart(t, url+"/posts", map[string]string{"name": "Alice", "message": "look"}, pngHeader)
	expectRedirect(t, res, "/")

	posts, _ := listPostsFull(t, url, "", "", 100, 1)

	if !posts[0].HasImage() || !strings.HasPrefix(*posts[0].ImageData, "data:image/png;base64,") {
		t.Fatalf("Uploaded image should be stored as a data URL, got %+v", posts[0].ImageData)
	}

	src, _ := getPage(t, url+"/").Find(".post-image").Attr("src")

	if src != *posts[0].ImageData {
		t.Errorf("Image not rendered on the page, got src %q", src)
	}

	res = postMultipart(t, url+"/posts", map[string]string{"name": "Alice", "message": "text"}, []byte("just some text"))
	expectStatus(t, res, http.StatusBadRequest)
}

func testFormEdit(t *testing.T, url string) {
	image := "data:image/png;base64,AAAA"
	created := postPost(t, url, postservice.NewPost{Name: "John", Message: "first", ImageData: &image}, http.StatusCreated)
	editUrl := url + "/posts/" + endpoint.FormatID(created.ID) + "/edit"

	doc := getPage(t, url+"/?edit="+endpoint.FormatID(created.ID))

	if value, _ := doc.Find(`.edit-form input[name="name"]`).Attr("value"); value != "John" {
		t.Errorf("Edit form should be prefilled, got %q", value)
	}

	res := postMultipart(t, editUrl, map[string]string{"message": "second", "clear_image": "on"}, nil)
	expectRedirect(t, res, "/")

	post := getPost(t, url, created.ID)

	if post.Message != "second" || post.Name != "John" || post.ImageData != nil {
		t.Errorf("Unexpected post after form edit: %+v", post)
	}

	res = postMultipart(t, editUrl, map[string]string{}, pngHeader)
	expectRedirect(t, res, "/")

	if post := getPost(t, url, created.ID); !post.HasImage() {
		t.Errorf("Image should have been replaced")
	}
}

func testFormDelete(t *testing.T, url string) {
	created := postPost(t, url, postservice.NewPost{Name: "John", Message: "bye"}, http.StatusCreated)
	id := endpoint.FormatID(created.ID)

	res := postForm(t, url+"/posts/"+id+"/delete", map[string][]string{"month": {"2024/01"}})
	expectRedirect(t, res, "/?confirm="+id+"&month=2024%2F01")

	doc := getPage(t, url+"/?confirm="+id)

	if msg := doc.Find(".confirm-message").Text(); msg != endpoint.DeleteConfirmMessage {
		t.Errorf("Unexpected confirmation message: %q", msg)
	}

	getPost(t, url, created.ID)

	res = postForm(t, url+"/posts/"+id+"/delete", map[string][]string{"confirm": {"yes"}})
	expectRedirect(t, res, "/")

	res = doRequest(t, "GET", url+"/api/posts/"+id, nil)
	res.Body.Close()
	expectStatus(t, res, http.StatusNotFound)
}
