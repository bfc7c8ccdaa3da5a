package persist

import (
	"context"
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

const (
	// MintStatusNeverMinted is the state of an asset whose hash has never been anchored on chain
	MintStatusNeverMinted MintStatus = "NeverMinted"
	// MintStatusScheduled is set by the async dispatcher when a mint request has been enqueued
	MintStatusScheduled MintStatus = "Scheduled"
	// MintStatusStarted is set by the coordinator immediately before submitting to the chain
	MintStatusStarted MintStatus = "Started"
	// MintStatusCompletedSuccessfully is the terminal state of a minted asset
	MintStatusCompletedSuccessfully MintStatus = "CompletedSuccessfully"
	// MintStatusError is the state of an asset whose last mint attempt failed
	MintStatusError MintStatus = "Error"
)

const (
	// VideoLicensingStatusNotYetLicensed is the state of an asset whose video has not been licensed
	VideoLicensingStatusNotYetLicensed VideoLicensingStatus = "NotYetLicensed"
	// VideoLicensingStatusAlreadyLicensed is the state required before an asset may be minted
	VideoLicensingStatusAlreadyLicensed VideoLicensingStatus = "AlreadyLicensed"
	// VideoLicensingStatusError is the state of an asset whose licensing process failed
	VideoLicensingStatusError VideoLicensingStatus = "Error"
)

// MintStatus represents where an asset is in its mint lifecycle
type MintStatus string

// VideoLicensingStatus represents where an asset's video is in its licensing lifecycle
type VideoLicensingStatus string

// Asset represents a registered video asset and its mint lifecycle state
type Asset struct {
	ID                   uuid.UUID            `json:"assetId"`
	CreationTime         CreationTime         `json:"created_at"`
	LastUpdated          LastUpdatedTime      `json:"last_update_time"`
	Hash                 NullString           `json:"hash"`
	HashAlgorithm        NullString           `json:"hash_algorithm"`
	MintStatus           MintStatus           `json:"mint_status"`
	MintedTx             NullString           `json:"minted_tx,omitempty"`
	VideoLicensingStatus VideoLicensingStatus `json:"video_licensing_status"`
	Counter              int64                `json:"counter"`
}

// AssetRepository represents a repository for interacting with persisted assets.
// The mint coordinator only ever reads assets and mutates the mint-status
// triple; all other asset mutation lives outside this service.
type AssetRepository interface {
	GetByID(context.Context, uuid.UUID) (Asset, error)
	SetMintStatus(context.Context, uuid.UUID, NullString, MintStatus) error
}

// ErrAssetNotFoundByID is an error type for when an asset is not found by id
type ErrAssetNotFoundByID struct {
	ID uuid.UUID
}

func (e ErrAssetNotFoundByID) Error() string {
	return fmt.Sprintf("asset not found by ID: %s", e.ID)
}

func (m MintStatus) String() string {
	return string(m)
}

// Value implements the driver.Valuer interface for MintStatus
func (m MintStatus) Value() (driver.Value, error) {
	return m.String(), nil
}

// Scan implements the sql.Scanner interface for MintStatus
func (m *MintStatus) Scan(v interface{}) error {
	if v == nil {
		*m = MintStatusNeverMinted
		return nil
	}
	*m = MintStatus(v.(string))
	return nil
}

func (v VideoLicensingStatus) String() string {
	return string(v)
}

// Value implements the driver.Valuer interface for VideoLicensingStatus
func (v VideoLicensingStatus) Value() (driver.Value, error) {
	return v.String(), nil
}

// Scan implements the sql.Scanner interface for VideoLicensingStatus
func (v *VideoLicensingStatus) Scan(i interface{}) error {
	if i == nil {
		*v = VideoLicensingStatusNotYetLicensed
		return nil
	}
	*v = VideoLicensingStatus(i.(string))
	return nil
}
