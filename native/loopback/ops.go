package loopback

// Operation names passed to Config.Fault.
const (
	OpAttach            = "provider.attach"
	OpCreate            = "provider.create"
	OpShutdown          = "provider.shutdown"
	OpStartTransaction  = "attachment.start_transaction"
	OpPrepare           = "attachment.prepare"
	OpCreateBlob        = "attachment.create_blob"
	OpOpenBlob          = "attachment.open_blob"
	OpDetach            = "attachment.detach"
	OpDropDatabase      = "attachment.drop_database"
	OpCommit            = "transaction.commit"
	OpCommitRetaining   = "transaction.commit_retaining"
	OpRollback          = "transaction.rollback"
	OpRollbackRetaining = "transaction.rollback_retaining"
	OpExecute           = "statement.execute"
	OpOpenCursor        = "statement.open_cursor"
	OpFreeStatement     = "statement.free"
	OpFetch             = "resultset.fetch"
	OpCloseCursor       = "resultset.close"
	OpGetSegment        = "blob.get_segment"
	OpPutSegment        = "blob.put_segment"
	OpBlobInfo          = "blob.info"
	OpCloseBlob         = "blob.close"
	OpCancelBlob        = "blob.cancel"
)
