package actions

import (
	"context"
)

// newRemoveFromDeletions drops the deletion ledger entry of the file.
func newRemoveFromDeletions(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		if err := s.Env.Deletions.RemoveDeletion(ctx, s.File.Filename()); err != nil {
			return err
		}
		s.logger().Info("removed deletion entry")
		return nil
	}), nil
}

type printOptions struct {
	Message string `mapstructure:"message"`
}

func newPrintWithMessage(options map[string]any) (Action, error) {
	var opts printOptions
	if err := Decode(options, &opts); err != nil {
		return nil, err
	}
	return Func(func(ctx context.Context, s Subject) error {
		s.logger().Info(opts.Message, "filename", s.File.Filename())
		return nil
	}), nil
}

func newTestPrint(options map[string]any) (Action, error) {
	return Func(func(ctx context.Context, s Subject) error {
		s.logger().Info("test print",
			"filename", s.File.Filename(),
			"directory", s.File.Directory(),
			"object_key", s.File.ObjectKey(),
		)
		return nil
	}), nil
}
