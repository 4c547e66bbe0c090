package hotstore

import "fmt"

func errWrongType(key string) error {
	return fmt.Errorf("hotstore: key %q holds a different type", key)
}

func errIndexRange(key string) error {
	return fmt.Errorf("hotstore: index out of range for key %q", key)
}
