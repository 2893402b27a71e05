package backend

import (
	"context"

	"github.com/lalithlochan/courier/internal/db"
	"github.com/lalithlochan/courier/internal/notify"
)

// Dummy accepts every message without sending it anywhere.
type Dummy struct {
	*notify.Base
}

func NewDummy(kwargs notify.Kwargs, deps Deps) (*Dummy, error) {
	var opts notify.Options
	if err := notify.DecodeConfig(notify.BackendDummy, deps.settings(notify.BackendDummy), kwargs, &opts); err != nil {
		return nil, err
	}
	return &Dummy{Base: deps.base(notify.BackendDummy, opts, nil, nil)}, nil
}

func (d *Dummy) MakeContent(_, body string, _ []notify.Recipient, _ notify.Field, _ notify.Kwargs) (any, error) {
	return body, nil
}

func (d *Dummy) PerformSend(ctx context.Context, msg *db.Message, recipients []notify.Recipient, _ notify.Field, save bool, _ notify.Kwargs) error {
	for i := range recipients {
		if err := d.OnSuccess(ctx, msg, &recipients[i], save, nil); err != nil {
			return err
		}
	}
	return nil
}
