package extract

import (
	"testing"

	"apikb/internal/manifest"
)

func extractPython(t *testing.T, src string) *Result {
	t.Helper()

	res, err := (&PythonExtractor{}).Extract("users.py", []byte(src))
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	return res
}

func findEndpoint(t *testing.T, res *Result, method, path string) *manifest.EndpointInfo {
	t.Helper()

	for i := range res.Endpoints {
		ep := &res.Endpoints[i]
		if ep.Method == method && ep.Path == path {
			return ep
		}
	}
	t.Fatalf("endpoint %s %s not found in %+v", method, path, res.Endpoints)
	return nil
}

func TestPythonFastAPIRoute(t *testing.T) {
	src := `
from fastapi import FastAPI
from pydantic import BaseModel

app = FastAPI()

class UserResponse(BaseModel):
    id: int
    name: str
    email: Optional[str] = None

@app.get("/users/{user_id}", response_model=UserResponse)
async def get_user(user_id: int, include_deleted: bool = False) -> UserResponse:
    ...
`

	res := extractPython(t, src)

	ep := findEndpoint(t, res, "GET", "/users/{user_id}")
	if ep.ResponseDTO != "UserResponse" {
		t.Errorf("ResponseDTO = %q, want UserResponse", ep.ResponseDTO)
	}
	if len(ep.PathParams) != 1 || ep.PathParams[0].Name != "user_id" {
		t.Fatalf("PathParams = %+v, want [user_id]", ep.PathParams)
	}
	if ep.PathParams[0].Type != "int" {
		t.Errorf("path param type = %q, want int", ep.PathParams[0].Type)
	}
	if len(ep.QueryParams) != 1 || ep.QueryParams[0].Name != "include_deleted" {
		t.Fatalf("QueryParams = %+v, want [include_deleted]", ep.QueryParams)
	}
	if ep.QueryParams[0].Required {
		t.Error("defaulted query param should not be required")
	}

	if len(res.DTOs) != 1 || res.DTOs[0].Name != "UserResponse" {
		t.Fatalf("DTOs = %+v, want [UserResponse]", res.DTOs)
	}
	fields := res.DTOs[0].Fields
	if len(fields) != 3 {
		t.Fatalf("got %d fields, want 3", len(fields))
	}
	if !fields[0].Required || !fields[1].Required {
		t.Error("id and name should be required")
	}
	if fields[2].Required {
		t.Error("Optional email should not be required")
	}
	if fields[2].Type != "str" {
		t.Errorf("email type = %q, want str (unwrapped)", fields[2].Type)
	}
}

func TestPythonRequestBodyBinding(t *testing.T) {
	src := `
@app.post("/users")
async def create_user(payload: CreateUserRequest):
    ...
`

	res := extractPython(t, src)
	ep := findEndpoint(t, res, "POST", "/users")
	if ep.RequestDTO != "CreateUserRequest" {
		t.Errorf("RequestDTO = %q, want CreateUserRequest", ep.RequestDTO)
	}
}

func TestPythonFlaskRoute(t *testing.T) {
	src := `
@app.route("/items/<int:item_id>", methods=["GET", "DELETE"])
@login_required
def item(item_id):
    ...
`

	res := extractPython(t, src)
	if len(res.Endpoints) != 2 {
		t.Fatalf("got %d endpoints, want 2 (GET and DELETE)", len(res.Endpoints))
	}

	ep := findEndpoint(t, res, "GET", "/items/{item_id}")
	if !ep.AuthRequired {
		t.Error("login_required should mark endpoint as authenticated")
	}
	if len(ep.PathParams) != 1 || ep.PathParams[0].Type != "int" {
		t.Errorf("PathParams = %+v, want typed item_id", ep.PathParams)
	}

	findEndpoint(t, res, "DELETE", "/items/{item_id}")
}

func TestPythonRolesDecorator(t *testing.T) {
	src := `
@app.delete("/admin/users/{user_id}")
@roles_required("admin", "superuser")
def remove_user(user_id: int):
    ...
`

	res := extractPython(t, src)
	ep := findEndpoint(t, res, "DELETE", "/admin/users/{user_id}")
	if !ep.AuthRequired {
		t.Error("roles_required should mark endpoint as authenticated")
	}
	if len(ep.Roles) != 2 || ep.Roles[0] != "admin" || ep.Roles[1] != "superuser" {
		t.Errorf("Roles = %v, want [admin superuser]", ep.Roles)
	}
}

func TestPythonDynamicRoutePath(t *testing.T) {
	src := `
@app.get(BASE_PATH + "/things")
def things():
    ...
`

	res := extractPython(t, src)
	if len(res.Endpoints) != 1 {
		t.Fatalf("got %d endpoints, want 1", len(res.Endpoints))
	}
	ep := res.Endpoints[0]
	if !ep.Partial || ep.Path != PartialPath {
		t.Errorf("dynamic path should be partial, got %+v", ep)
	}
	if len(res.Warnings) == 0 {
		t.Error("dynamic path should produce a warning")
	}
}

func TestPythonPydanticConstraints(t *testing.T) {
	src := `
class SignupRequest(BaseModel):
    username: str = Field(..., min_length=3, max_length=32)
    age: int = Field(0, ge=18)
    tag: str = "user"
`

	res := extractPython(t, src)
	if len(res.DTOs) != 1 {
		t.Fatalf("got %d DTOs, want 1", len(res.DTOs))
	}
	fields := res.DTOs[0].Fields

	username := fields[0]
	if !username.Required {
		t.Error("Field(...) should stay required")
	}
	if username.Constraints["min"] != "3" || username.Constraints["max"] != "32" {
		t.Errorf("username constraints = %v", username.Constraints)
	}

	age := fields[1]
	if age.Required {
		t.Error("Field(0) should not be required")
	}
	if age.Constraints["min"] != "18" {
		t.Errorf("age constraints = %v", age.Constraints)
	}

	tag := fields[2]
	if tag.Default != "user" {
		t.Errorf("tag default = %q, want user", tag.Default)
	}
}

func TestPythonDataclassDTO(t *testing.T) {
	src := `
@dataclass
class Point:
    x: float
    y: float
    label: str = ""

class Helper:
    def run(self):
        pass
`

	res := extractPython(t, src)
	if len(res.DTOs) != 1 || res.DTOs[0].Name != "Point" {
		t.Fatalf("DTOs = %+v, want only Point", res.DTOs)
	}
	if len(res.DTOs[0].Fields) != 3 {
		t.Errorf("got %d fields, want 3", len(res.DTOs[0].Fields))
	}
}

func TestPythonEnvVars(t *testing.T) {
	src := `
import os

DB_URL = os.environ["DATABASE_URL"]
DEBUG = os.environ.get("DEBUG", "false")
PORT = os.getenv("PORT", 8000)
SECRET = os.environ.get("SECRET_KEY")
`

	res := extractPython(t, src)
	byName := make(map[string]manifest.EnvironmentVariable)
	for _, ev := range res.EnvVars {
		byName[ev.Name] = ev
	}

	if _, ok := byName["DATABASE_URL"]; !ok {
		t.Error("DATABASE_URL not extracted")
	}
	if byName["DEBUG"].Default != "false" {
		t.Errorf("DEBUG default = %q, want false", byName["DEBUG"].Default)
	}
	if byName["PORT"].Default != "8000" {
		t.Errorf("PORT default = %q, want 8000", byName["PORT"].Default)
	}
	if byName["SECRET_KEY"].Default != "" {
		t.Errorf("SECRET_KEY default = %q, want empty", byName["SECRET_KEY"].Default)
	}
}

func TestSafeExtractRecoversPanic(t *testing.T) {
	res := SafeExtract(panicExtractor{}, "bad.py", []byte("anything"))
	if res.Status != manifest.StatusParseError {
		t.Errorf("Status = %q, want parse-error", res.Status)
	}
	if len(res.Warnings) == 0 {
		t.Error("panic recovery should record a warning")
	}
}

type panicExtractor struct{}

func (panicExtractor) Language() manifest.Language { return manifest.LangPython }
func (panicExtractor) Extract(string, []byte) (*Result, error) {
	panic("boom")
}
