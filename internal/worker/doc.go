// Package worker — стадийный воркер pipeline.
//
// # Обзор
//
// Worker связывает один контракт стадии (domain.Contract) с очередью RabbitMQ:
// читает события из Contract.Consumes, выполняет работу стадии через Processor
// и публикует ровно одно следующее событие в Contract.Next.
//
// Workers stateless и масштабируются горизонтально: несколько экземпляров
// потребляют из одной очереди, prefetch=1 на каждом.
//
//	w := worker.New(worker.Config{
//	    Contract:  domain.ExtractorContract,
//	    Processor: stages.NewAudioExtraction(...),
//	    Publisher: publisher,
//	    Conn:      mqConn,
//	    Logger:    logger,
//	})
//
//	if err := w.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//	defer w.Stop()
//
// # Обработка сообщения
//
//  1. Consumer декодирует тело в domain.StageEvent (мусор → reject)
//  2. Contract.Accept: стадия и обязательные поля (иначе → reject)
//  3. Processor.Process выполняет побочные эффекты стадии
//  4. Contract.Successor строит следующее событие
//  5. Publish в Contract.Next, только после этого Ack
//
// # Ошибки
//
// Любая ошибка на шагах 3–5 оборачивается в ErrExternalCall, логируется
// с artifact_id и стадией, сообщение отклоняется без requeue. Retry внутри
// стадии не делается: повторная доставка происходит только при разрыве
// соединения до ack.
package worker
