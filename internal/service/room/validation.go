package room

import (
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

var (
	roomIdRule      = []validation.Rule{validation.Required, validation.Length(1, 64)}
	userIdRule      = []validation.Rule{validation.Required, validation.Length(1, 128)}
	displayNameRule = []validation.Rule{validation.Length(0, 64)}
)

func invalid(err error) error {
	return fmt.Errorf("%w: %w", ErrInvalidParams, err)
}

func (p *CreateRoomParams) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Name, validation.Length(0, 100)),
		validation.Field(&p.MovieId, validation.Required, validation.Length(1, 128)),
		validation.Field(&p.RequestorId, userIdRule...),
	); err != nil {
		return invalid(err)
	}

	return nil
}

func (p *JoinRoomParams) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.RoomId, roomIdRule...),
		validation.Field(&p.UserId, userIdRule...),
		validation.Field(&p.DisplayName, displayNameRule...),
		validation.Field(&p.ConnId, validation.Required),
	); err != nil {
		return invalid(err)
	}

	return nil
}

func (p *UpdatePlaybackParams) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.RoomId, roomIdRule...),
		validation.Field(&p.SenderId, userIdRule...),
		validation.Field(&p.Position, validation.Min(0.0)),
	); err != nil {
		return invalid(err)
	}

	return nil
}

func (p *BroadcastChatParams) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Text, validation.Required, validation.Length(1, 1000)),
		validation.Field(&p.VideoTimestamp, validation.Min(0.0)),
	); err != nil {
		return invalid(err)
	}

	return nil
}

func (p *BroadcastReactionParams) Validate() error {
	if err := validation.ValidateStruct(p,
		validation.Field(&p.Emoji, validation.Required, validation.Length(1, 16)),
		validation.Field(&p.VideoTimestamp, validation.Min(0.0)),
	); err != nil {
		return invalid(err)
	}

	return nil
}
