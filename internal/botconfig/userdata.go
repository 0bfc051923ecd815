package botconfig

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/dop251/goja"
)

const userDataTimeout = time.Second

// UserInfo is the object the userdata script assigns to userInfo.
type UserInfo struct {
	Users       []string
	GMapsAPIKey string
}

// RenderUserData builds the userdata script for the bot's web map.
func RenderUserData(username, gmapKey string) []byte {
	lines := []string{
		"var userInfo = {",
		"users : [" + jsString(username) + "],",
		"userZoom : true,",
		"userFollow : true,",
		`imageExt : ".png",`,
		"gMapsAPIKey : " + jsString(gmapKey),
		"};",
	}
	return []byte(strings.Join(lines, "\n"))
}

// jsString quotes s as a JavaScript string literal. JSON string syntax is a
// subset of it, and encoding/json escapes U+2028 and U+2029.
func jsString(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

// ParseUserData evaluates a userdata script in an empty runtime and returns
// the userInfo it declares.
func ParseUserData(src []byte) (*UserInfo, error) {
	vm := goja.New()
	timer := time.AfterFunc(userDataTimeout, func() {
		vm.Interrupt("timeout")
	})
	defer timer.Stop()

	if _, err := vm.RunString(string(src)); err != nil {
		return nil, &UserDataError{Reason: "evaluate", Cause: err}
	}

	val := vm.Get("userInfo")
	if val == nil || goja.IsUndefined(val) || goja.IsNull(val) {
		return nil, &UserDataError{Reason: "userInfo is not defined"}
	}
	obj := val.ToObject(vm)

	info := &UserInfo{}
	users := obj.Get("users")
	if users == nil || goja.IsUndefined(users) {
		return nil, &UserDataError{Reason: "userInfo.users is missing"}
	}
	list, ok := users.Export().([]any)
	if !ok {
		return nil, &UserDataError{Reason: "userInfo.users is not an array"}
	}
	for _, u := range list {
		s, ok := u.(string)
		if !ok {
			return nil, &UserDataError{Reason: "userInfo.users holds a non-string"}
		}
		info.Users = append(info.Users, s)
	}

	key := obj.Get("gMapsAPIKey")
	if key == nil || goja.IsUndefined(key) {
		return nil, &UserDataError{Reason: "userInfo.gMapsAPIKey is missing"}
	}
	info.GMapsAPIKey = key.String()

	return info, nil
}

// ValidateUserData checks that src declares a userInfo with at least one user.
func ValidateUserData(src []byte) error {
	info, err := ParseUserData(src)
	if err != nil {
		return err
	}
	if len(info.Users) == 0 {
		return &UserDataError{Reason: "userInfo.users is empty"}
	}
	return nil
}
