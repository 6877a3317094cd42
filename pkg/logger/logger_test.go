package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func TestLoggerInit(t *testing.T) {
	Convey("Given the global logger", t, func() {
		Convey("When initialized with the default writer", func() {
			err := Init()

			Convey("Then Get returns a usable logger", func() {
				So(err, ShouldBeNil)
				So(Get(), ShouldNotBeNil)
				So(Sync(), ShouldBeNil)
			})
		})

		Convey("When initialized with an unknown format", func() {
			err := InitWithWriter(&bytes.Buffer{}, "xml")

			Convey("Then it fails", func() {
				So(err, ShouldNotBeNil)
				So(err.Error(), ShouldContainSubstring, "unknown log format")
			})
		})
	})
}

func TestLoggerLevels(t *testing.T) {
	Convey("Given a json logger writing to a buffer", t, func() {
		var buf bytes.Buffer
		So(InitWithWriter(&buf, "json"), ShouldBeNil)
		ctx := context.Background()

		Convey("When logging below the configured level", func() {
			So(SetLevelString("warn"), ShouldBeNil)
			Get().Info(ctx, "hidden")
			Get().Warn(ctx, "visible", String("k", "v"), Duration("d", time.Second), Bool("b", true))

			Convey("Then only records at or above the level are written", func() {
				So(buf.String(), ShouldNotContainSubstring, "hidden")
				So(buf.String(), ShouldContainSubstring, "visible")
				So(buf.String(), ShouldContainSubstring, `"k":"v"`)
				So(buf.String(), ShouldContainSubstring, `"source":"`)
			})
		})

		Convey("When a named logger records an error", func() {
			So(SetLevelString("debug"), ShouldBeNil)
			Named("clock").Error(ctx, "boom", Error(errors.New("bad")))

			Convey("Then the component and error are attached", func() {
				So(buf.String(), ShouldContainSubstring, `"component":"clock"`)
				So(buf.String(), ShouldContainSubstring, `"error":"bad"`)
			})
		})

		Convey("When setting an unknown level", func() {
			err := SetLevelString("verbose")

			Convey("Then it is rejected", func() {
				So(err, ShouldNotBeNil)
			})
		})

		Reset(func() { SetLevel(slog.LevelInfo) })
	})
}

func TestNop(t *testing.T) {
	Convey("Given a nop logger", t, func() {
		l := Nop()

		Convey("Then logging never panics", func() {
			So(func() {
				l.Error(context.Background(), "ignored", Int("n", 1))
				l.Named("x").Debug(context.Background(), "ignored")
			}, ShouldNotPanic)
		})
	})
}
