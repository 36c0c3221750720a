package kernel

import "github.com/sanerun/aio/internal/request"

// completeCompletion fills a request's CompletionData from an Event
// already carrying the syscall outcome, for completion-based backends
// (IOCP, io_uring) where the kernel performed the operation itself. It
// returns whether the request asked to be reactivated.
func completeCompletion(req *request.Request, ev Event) bool {
	switch d := req.Data.(type) {
	case *request.SocketAcceptData:
		d.Callback(req, request.SocketAcceptCompletion{AcceptedFD: int(ev.Result), Err: ev.Err})
	case *request.SocketConnectData:
		d.Callback(req, request.SocketConnectCompletion{Err: ev.Err})
	case *request.SocketSendData:
		d.Callback(req, request.SocketSendCompletion{BytesSent: int(ev.Result), Err: ev.Err})
	case *request.SocketReceiveData:
		d.Callback(req, request.SocketReceiveCompletion{BytesRead: int(ev.Result), Disconnected: ev.Result == 0 && ev.Err == nil, Err: ev.Err})
	case *request.FileReadData:
		eof := ev.Err == nil && ev.Result == 0 && len(d.Buffer) > 0
		d.Callback(req, request.FileReadCompletion{BytesRead: int(ev.Result), EOF: eof, Err: ev.Err})
	case *request.FileWriteData:
		d.Callback(req, request.FileWriteCompletion{BytesWritten: int(ev.Result), Err: ev.Err})
	case *request.FilePollData:
		d.Callback(req, request.FilePollCompletion{Readable: ev.Result != 0, Err: ev.Err})
	}
	return req.WantsReactivation()
}
