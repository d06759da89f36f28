package httpapi

import dErrors "sessionhub/pkg/domainerrors"

func badRequest(msg string) error { return dErrors.New(dErrors.CodeBadRequest, msg) }

func notFound(msg string) error { return dErrors.New(dErrors.CodeNotFound, msg) }
