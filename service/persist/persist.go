package persist

import (
	"database/sql/driver"
	"fmt"
	"time"

	"github.com/segmentio/ksuid"
)

// DBID represents a database ID
type DBID string

// CreationTime represents the time a record was created
type CreationTime time.Time

// LastUpdatedTime represents the time a record was last updated
type LastUpdatedTime time.Time

// NullString represents a string that may be null in the database
type NullString string

// Address represents the on-chain address of an account or contract
type Address string

// GenerateID generates an application-wide unique ID
func GenerateID() DBID {
	id, err := ksuid.NewRandom()
	if err != nil {
		panic(fmt.Sprintf("error generating id: %s", err))
	}
	return DBID(id.String())
}

func (d DBID) String() string {
	return string(d)
}

// Value implements the driver.Valuer interface for DBID
func (d DBID) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements the sql.Scanner interface for DBID
func (d *DBID) Scan(i interface{}) error {
	if i == nil {
		*d = ""
		return nil
	}
	*d = DBID(i.(string))
	return nil
}

// Time returns the CreationTime as a time.Time
func (c CreationTime) Time() time.Time {
	return time.Time(c)
}

// Value implements the driver.Valuer interface for CreationTime
func (c CreationTime) Value() (driver.Value, error) {
	return c.Time(), nil
}

// Scan implements the sql.Scanner interface for CreationTime
func (c *CreationTime) Scan(v interface{}) error {
	if v == nil {
		*c = CreationTime{}
		return nil
	}
	*c = CreationTime(v.(time.Time))
	return nil
}

func (c CreationTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + c.Time().UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (c *CreationTime) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+time.RFC3339Nano+`"`, string(b))
	if err != nil {
		return err
	}
	*c = CreationTime(t)
	return nil
}

// Time returns the LastUpdatedTime as a time.Time
func (l LastUpdatedTime) Time() time.Time {
	return time.Time(l)
}

// Value implements the driver.Valuer interface for LastUpdatedTime
func (l LastUpdatedTime) Value() (driver.Value, error) {
	return l.Time(), nil
}

// Scan implements the sql.Scanner interface for LastUpdatedTime
func (l *LastUpdatedTime) Scan(v interface{}) error {
	if v == nil {
		*l = LastUpdatedTime{}
		return nil
	}
	*l = LastUpdatedTime(v.(time.Time))
	return nil
}

func (l LastUpdatedTime) MarshalJSON() ([]byte, error) {
	return []byte(`"` + l.Time().UTC().Format(time.RFC3339Nano) + `"`), nil
}

func (l *LastUpdatedTime) UnmarshalJSON(b []byte) error {
	t, err := time.Parse(`"`+time.RFC3339Nano+`"`, string(b))
	if err != nil {
		return err
	}
	*l = LastUpdatedTime(t)
	return nil
}

func (n NullString) String() string {
	return string(n)
}

// Value implements the driver.Valuer interface for NullString
func (n NullString) Value() (driver.Value, error) {
	if n == "" {
		return nil, nil
	}
	return n.String(), nil
}

// Scan implements the sql.Scanner interface for NullString
func (n *NullString) Scan(v interface{}) error {
	if v == nil {
		*n = ""
		return nil
	}
	*n = NullString(v.(string))
	return nil
}

func (a Address) String() string {
	return string(a)
}

// Value implements the driver.Valuer interface for Address
func (a Address) Value() (driver.Value, error) {
	return a.String(), nil
}

// Scan implements the sql.Scanner interface for Address
func (a *Address) Scan(v interface{}) error {
	if v == nil {
		*a = ""
		return nil
	}
	*a = Address(v.(string))
	return nil
}
