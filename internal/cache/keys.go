package cache

import "fmt"

func SchemaKey(agency, id, version string) string {
	return fmt.Sprintf("registry:schema:%s:%s:%s", agency, id, version)
}

func SchemeKey(agency, id, version string) string {
	return fmt.Sprintf("registry:scheme:%s:%s:%s", agency, id, version)
}

func RateLimitKey(token string) string {
	return fmt.Sprintf("ratelimit:%s", token)
}
