package utils

import (
	"context"

	"github.com/spf13/cast"
)

type CtxKey string

const (
	CtxKeyESVersion   CtxKey = "esVersion"
	CtxKeyTaskName    CtxKey = "taskName"
	CtxKeyTaskID      CtxKey = "taskId"
	CtxKeyTaskAction  CtxKey = "taskAction"
	CtxKeySourceIndex CtxKey = "sourceIndex"
	CtxKeyTargetIndex CtxKey = "targetIndex"
	CtxKeyJobHandle   CtxKey = "jobHandle"
	CtxKeyDryRun      CtxKey = "dryRun"

	CtxKeyShowProgress CtxKey = "showProgress"
)

func GetCtxKeyESVersion(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyESVersion))
}

func SetCtxKeyESVersion(ctx context.Context, version string) context.Context {
	return context.WithValue(ctx, CtxKeyESVersion, version)
}

func GetCtxKeyTaskName(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyTaskName))
}

func SetCtxKeyTaskName(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, CtxKeyTaskName, name)
}

func GetCtxKeyTaskID(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyTaskID))
}

func SetCtxKeyTaskID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, CtxKeyTaskID, id)
}

func GetCtxKeyTaskAction(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyTaskAction))
}

func SetCtxKeyTaskAction(ctx context.Context, action string) context.Context {
	return context.WithValue(ctx, CtxKeyTaskAction, action)
}

func GetCtxKeySourceIndex(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeySourceIndex))
}

func SetCtxKeySourceIndex(ctx context.Context, index string) context.Context {
	return context.WithValue(ctx, CtxKeySourceIndex, index)
}

func GetCtxKeyTargetIndex(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyTargetIndex))
}

func SetCtxKeyTargetIndex(ctx context.Context, index string) context.Context {
	return context.WithValue(ctx, CtxKeyTargetIndex, index)
}

func GetCtxKeyJobHandle(ctx context.Context) string {
	return cast.ToString(ctx.Value(CtxKeyJobHandle))
}

func SetCtxKeyJobHandle(ctx context.Context, handle string) context.Context {
	return context.WithValue(ctx, CtxKeyJobHandle, handle)
}

func GetCtxKeyDryRun(ctx context.Context) bool {
	return cast.ToBool(ctx.Value(CtxKeyDryRun))
}

func SetCtxKeyDryRun(ctx context.Context, dryRun bool) context.Context {
	return context.WithValue(ctx, CtxKeyDryRun, dryRun)
}

func GetCtxKeyShowProgress(ctx context.Context) bool {
	return cast.ToBool(ctx.Value(CtxKeyShowProgress))
}

func SetCtxKeyShowProgress(ctx context.Context, showProgress bool) context.Context {
	return context.WithValue(ctx, CtxKeyShowProgress, showProgress)
}
